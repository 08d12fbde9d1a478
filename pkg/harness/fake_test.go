package harness

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/arzzra/callprobe/pkg/audit"
	"github.com/arzzra/callprobe/pkg/engine"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fakeMedia struct {
	mu      sync.Mutex
	played  []string
	records []string
}

func (m *fakeMedia) StartPlayback(path string) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, path)
	return nopCloser{}, nil
}

func (m *fakeMedia) StartRecording(path string) (io.Closer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, path)
	return nil, errors.New("no recorder port")
}

type fakeSession struct {
	id     string
	dump   string
	status int
	ch     chan engine.Notification
	once   sync.Once
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Notifications() <-chan engine.Notification { return s.ch }

func (s *fakeSession) Dump(includeMedia bool, indent string) (string, error) {
	if s.dump == "" {
		return "", errors.New("no call information")
	}
	return s.dump, nil
}

func (s *fakeSession) disconnect() {
	s.once.Do(func() {
		s.ch <- engine.Notification{
			Kind: engine.SessionStateChanged,
			Info: engine.SessionInfo{State: engine.StateDisconnected, LastStatusCode: s.status},
		}
		close(s.ch)
	})
}

// fakeEngine отдает заранее заданные отчеты по порядку попыток
type fakeEngine struct {
	mu       sync.Mutex
	dumps    []string
	makeErrs map[int]error
	calls    int
	hangups  int
	media    *fakeMedia
	live     []*fakeSession
	// rejectStatus завершает звонок сразу после CALLING
	rejectStatus int
	// onConfirmed вызывается после отправки CONFIRMED
	onConfirmed func()
}

func newFakeEngine(dumps ...string) *fakeEngine {
	return &fakeEngine{dumps: dumps, makeErrs: map[int]error{}, media: &fakeMedia{}}
}

func (e *fakeEngine) MakeCall(ctx context.Context, uri string, opts engine.CallOptions) (engine.Session, error) {
	e.mu.Lock()
	e.calls++
	n := e.calls
	if err, ok := e.makeErrs[n]; ok {
		e.mu.Unlock()
		return nil, err
	}
	dump := ""
	if n-1 < len(e.dumps) {
		dump = e.dumps[n-1]
	}
	s := &fakeSession{id: uri + "-" + string(rune('0'+n)), dump: dump, ch: make(chan engine.Notification, 8)}
	e.live = append(e.live, s)
	e.mu.Unlock()

	s.ch <- engine.Notification{Kind: engine.SessionStateChanged, Info: engine.SessionInfo{State: engine.StateCalling, RemoteURI: uri}}
	if e.rejectStatus != 0 {
		s.status = e.rejectStatus
		s.disconnect()
		return s, nil
	}
	s.status = 200
	s.ch <- engine.Notification{Kind: engine.SessionStateChanged, Info: engine.SessionInfo{State: engine.StateConfirmed, LastStatusCode: 200, RemoteURI: uri}}
	s.ch <- engine.Notification{Kind: engine.MediaStateChanged, Media: e.media}
	if e.onConfirmed != nil {
		e.onConfirmed()
	}
	return s, nil
}

func (e *fakeEngine) HangupAll(ctx context.Context) error {
	e.mu.Lock()
	e.hangups++
	live := e.live
	e.live = nil
	e.mu.Unlock()

	for _, s := range live {
		s.disconnect()
	}
	return nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) hangupCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hangups
}

// memorySink собирает записи в памяти
type memorySink struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (s *memorySink) Append(rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}
