package pjsua

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/callprobe/pkg/engine"
)

// emitTimeout bounds how long the poller waits for a slow consumer
const emitTimeout = time.Second

type session struct {
	engine    *Engine
	index     int
	id        string
	remoteURI string

	mu            sync.Mutex
	notifications chan engine.Notification
	state         engine.SessionState
	wasListed     bool
	missedCount   int
	mediaNotified bool
	snapshot      string

	// sendMu orders sends against closing the channel
	sendMu   sync.Mutex
	finished bool
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Notifications() <-chan engine.Notification {
	return s.notifications
}

// Dump normalizes the snapshot taken at hangup, or a fresh dump while the
// call is still up.
func (s *session) Dump(includeMedia bool, indent string) (string, error) {
	s.mu.Lock()
	raw := s.snapshot
	s.mu.Unlock()

	if raw == "" {
		if s.isFinished() {
			return "", fmt.Errorf("session %s: %w", s.id, engine.ErrNoSession)
		}
		out, err := s.engine.command(context.Background(), "dump_q")
		if err != nil {
			return "", err
		}
		raw = out
	}
	return NormalizeDump(raw, s.id, 0, includeMedia, indent)
}

func (s *session) setSnapshot(raw string) {
	s.mu.Lock()
	s.snapshot = raw
	s.mu.Unlock()
}

func (s *session) seen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wasListed
}

func (s *session) missed() {
	s.mu.Lock()
	s.missedCount++
	s.mu.Unlock()
}

func (s *session) missedPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missedCount
}

// observe turns one "call list" entry into state and media notifications
func (s *session) observe(entry CallEntry) {
	s.mu.Lock()
	s.wasListed = true
	changed := entry.State != s.state
	s.state = entry.State
	mediaUp := entry.MediaActive() && !s.mediaNotified
	if mediaUp {
		s.mediaNotified = true
	}
	s.mu.Unlock()

	if changed {
		s.emit(engine.Notification{
			Kind: engine.SessionStateChanged,
			Info: engine.SessionInfo{State: entry.State, RemoteURI: s.remoteURI},
		})
	}
	if mediaUp {
		s.emit(engine.Notification{
			Kind:  engine.MediaStateChanged,
			Media: &confMedia{engine: s.engine, remoteURI: s.remoteURI},
		})
	}
}

// finish emits DISCONNECTED once and closes the notification channel
func (s *session) finish(status int) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finished {
		return
	}
	s.finished = true

	s.mu.Lock()
	s.state = engine.StateDisconnected
	s.mu.Unlock()

	s.send(engine.Notification{
		Kind: engine.SessionStateChanged,
		Info: engine.SessionInfo{State: engine.StateDisconnected, LastStatusCode: status, RemoteURI: s.remoteURI},
	})
	close(s.notifications)
}

func (s *session) emit(n engine.Notification) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finished {
		return
	}
	s.send(n)
}

func (s *session) isFinished() bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.finished
}

// send must be called with sendMu held
func (s *session) send(n engine.Notification) {
	select {
	case s.notifications <- n:
	case <-time.After(emitTimeout):
	}
}

// confMedia attaches the pjsua file player and recorder, created from
// --play-file and --rec-file, to the call's conference port.
type confMedia struct {
	engine    *Engine
	remoteURI string
}

func (m *confMedia) StartPlayback(path string) (io.Closer, error) {
	return m.connect(path, true)
}

func (m *confMedia) StartRecording(path string) (io.Closer, error) {
	return m.connect(path, false)
}

func (m *confMedia) connect(path string, playback bool) (io.Closer, error) {
	ctx := context.Background()
	out, err := m.engine.command(ctx, "audio_conf")
	if err != nil {
		return nil, err
	}
	ports := ParseConfPorts(out)

	file, ok := findPort(ports, func(p ConfPort) bool {
		return strings.Contains(p.Name, filepath.Base(path))
	})
	if !ok {
		return nil, fmt.Errorf("no conference port for %s", path)
	}
	call, ok := findPort(ports, func(p ConfPort) bool {
		return p.Name == m.remoteURI || strings.HasPrefix(p.Name, "sip:") || strings.HasPrefix(p.Name, "sips:")
	})
	if !ok {
		return nil, fmt.Errorf("no conference port for call %s", m.remoteURI)
	}

	src, dst := file.ID, call.ID
	if !playback {
		src, dst = call.ID, file.ID
	}
	if _, err := m.engine.command(ctx, fmt.Sprintf("audio_connect %d %d", src, dst)); err != nil {
		return nil, err
	}
	return &confLink{engine: m.engine, src: src, dst: dst}, nil
}

// findPort prefers the last match, the newest call port is listed last
func findPort(ports []ConfPort, match func(ConfPort) bool) (ConfPort, bool) {
	for i := len(ports) - 1; i >= 0; i-- {
		if match(ports[i]) {
			return ports[i], true
		}
	}
	return ConfPort{}, false
}

type confLink struct {
	engine   *Engine
	src, dst int
	once     sync.Once
}

func (l *confLink) Close() error {
	var err error
	l.once.Do(func() {
		_, err = l.engine.command(context.Background(), fmt.Sprintf("audio_disconnect %d %d", l.src, l.dst))
	})
	return err
}
