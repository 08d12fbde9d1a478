package native

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
	"github.com/arzzra/callprobe/pkg/quality"
)

// emitTimeout ограничивает ожидание медленного потребителя уведомлений
const emitTimeout = time.Second

var sizeAbbrs = []string{"B", "KB", "MB", "GB", "TB"}

// session исходящий звонок встроенного движка
type session struct {
	engine    *Engine
	id        string
	remoteURI string
	dialog    *sipgo.DialogClientSession
	rtpConn   net.PacketConn
	log       logging.Logger

	// cancel прерывает ожидание ответа, sipgo отправляет CANCEL
	cancel context.CancelFunc
	hangup chan struct{}
	once   sync.Once

	mu         sync.Mutex
	state      engine.SessionState
	lastStatus int
	answered   bool
	media      *remoteMedia
	stream     *stream

	notifications chan engine.Notification
	sendMu        sync.Mutex
	finished      bool
	done          chan struct{}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Notifications() <-chan engine.Notification {
	return s.notifications
}

// run ведет звонок от ожидания ответа до завершения
func (s *session) run(ctx context.Context) {
	defer s.cancel()

	err := s.dialog.WaitAnswer(ctx, sipgo.AnswerOptions{
		OnResponse: func(res *sip.Response) error {
			s.onResponse(res)
			return nil
		},
		Username: s.engine.opts.Username,
		Password: s.engine.opts.Password,
	})
	if err != nil {
		s.log.Info(ctx, "call not answered", logging.Err(err), logging.Int("status", s.status()))
		s.teardown()
		return
	}

	if err := s.dialog.Ack(ctx); err != nil {
		s.log.LogError(ctx, err, "ACK failed")
	}

	media, err := parseAnswer(s.dialog.InviteResponse.Body())
	s.mu.Lock()
	s.answered = true
	s.mu.Unlock()
	s.setState(engine.StateConfirmed)

	if err != nil {
		s.log.Warn(ctx, "answer without usable audio", logging.Err(err))
	} else {
		st := newStream(s.rtpConn, media, s.engine.opts.PacketTime)
		s.mu.Lock()
		s.media = media
		s.stream = st
		s.mu.Unlock()
		st.start()
		s.emit(engine.Notification{Kind: engine.MediaStateChanged, Media: st})
	}

	select {
	case <-s.dialog.Context().Done():
		s.log.Info(ctx, "remote hangup")
	case <-s.hangup:
		byeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.dialog.Bye(byeCtx); err != nil {
			s.log.LogError(byeCtx, err, "BYE failed")
		}
		cancel()
	case <-s.engine.done:
	}
	s.teardown()
}

// onResponse переводит ответы на INVITE в состояния сессии
func (s *session) onResponse(res *sip.Response) {
	code := int(res.StatusCode)
	if code >= 180 {
		s.mu.Lock()
		s.lastStatus = code
		s.mu.Unlock()
	}
	switch {
	case code >= 180 && code < 200:
		s.setState(engine.StateEarly)
	case code >= 200 && code < 300:
		s.setState(engine.StateConnecting)
	}
}

// requestHangup завершает звонок: BYE для отвеченного, CANCEL для остальных
func (s *session) requestHangup() {
	s.once.Do(func() {
		s.mu.Lock()
		answered := s.answered
		s.mu.Unlock()
		close(s.hangup)
		if !answered {
			s.cancel()
		}
	})
}

func (s *session) teardown() {
	s.mu.Lock()
	st := s.stream
	status := s.lastStatus
	s.mu.Unlock()

	if st != nil {
		_ = st.Close()
	} else {
		_ = s.rtpConn.Close()
	}
	_ = s.dialog.Close()

	s.engine.forget(s)
	s.finish(status)
}

func (s *session) setState(state engine.SessionState) {
	s.mu.Lock()
	if state == s.state {
		s.mu.Unlock()
		return
	}
	s.state = state
	remote := s.remoteURI
	status := s.lastStatus
	s.mu.Unlock()

	s.emit(engine.Notification{
		Kind: engine.SessionStateChanged,
		Info: engine.SessionInfo{State: state, LastStatusCode: status, RemoteURI: remote},
	})
}

func (s *session) status() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

// finish отправляет DISCONNECTED один раз и закрывает канал уведомлений
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
	close(s.done)
}

func (s *session) emit(n engine.Notification) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.finished {
		return
	}
	s.send(n)
}

// send вызывается под sendMu
func (s *session) send(n engine.Notification) {
	select {
	case s.notifications <- n:
	case <-time.After(emitTimeout):
	}
}

// Dump формирует отчет из счетчиков потока. Счетчики сохраняются после
// завершения звонка.
func (s *session) Dump(includeMedia bool, indent string) (string, error) {
	s.mu.Lock()
	state := s.state
	status := s.lastStatus
	media := s.media
	st := s.stream
	s.mu.Unlock()

	b := calldump.NewReportBuilder(indent)
	b.Field("call_id", s.id)
	b.Field("state", string(state))
	b.Field("remote_uri", s.remoteURI)
	b.Field("last_status", strconv.Itoa(status))

	if !includeMedia {
		return b.String(), nil
	}

	b.Section("media", func(b *calldump.ReportBuilder) {
		if st == nil || media == nil {
			return
		}
		b.Section("0", func(b *calldump.ReportBuilder) {
			b.Field("type", "audio")
			b.Field("codec", fmt.Sprintf("%s/%d", media.Codec.Name, media.Codec.ClockRate))
			b.Field("dir", media.Direction)
			b.Field("peer", media.Addr.String())
			b.Direction("rx", directionStats(&st.rx))
			b.Direction("tx", directionStats(&st.tx))
		})
	})
	return b.String(), nil
}

// directionStats печатает счетчики в виде, принятом в отчетах pjsua
func directionStats(c *counters) calldump.DirectionStats {
	return calldump.DirectionStats{
		TotalPacketCnt:  quality.FormatCount(c.packets.Load()),
		TotalPacketSize: units.CustomSize("%.1f%s", float64(c.bytes.Load()), 1000.0, sizeAbbrs),
	}
}
