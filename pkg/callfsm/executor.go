package callfsm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
)

// Executor выполняет действия переходов для одной сессии
type Executor struct {
	Session engine.Session
	Machine *Machine

	PlayFile string
	RecFile  string
	// DumpIndent отступ итогового отчета
	DumpIndent string

	Logger logging.Logger
	// OnAttachFailure вызывается для каждой ошибки подключения медиа
	OnAttachFailure func(err *MediaAttachmentError)

	mu      sync.Mutex
	closers []io.Closer
}

// Execute выполняет действия перехода
func (x *Executor) Execute(ctx context.Context, tr Transition) {
	for _, a := range tr.Actions {
		switch a.Kind {
		case ActionAttachMedia:
			x.attach(ctx, a.Media)
		case ActionFinalize:
			x.finalize(ctx)
		}
	}
}

// attach подключает медиа в режиме best effort
func (x *Executor) attach(ctx context.Context, media engine.LocalMedia) {
	if media == nil {
		return
	}
	if x.PlayFile != "" {
		c, err := media.StartPlayback(x.PlayFile)
		x.track(ctx, c, err, "playback", x.PlayFile)
	}
	if x.RecFile != "" {
		c, err := media.StartRecording(x.RecFile)
		x.track(ctx, c, err, "recording", x.RecFile)
	}
}

func (x *Executor) track(ctx context.Context, c io.Closer, err error, direction, path string) {
	if err != nil {
		attachErr := &MediaAttachmentError{Direction: direction, Path: path, Err: err}
		x.logger().LogError(ctx, attachErr, "медиа подключено частично")
		if x.OnAttachFailure != nil {
			x.OnAttachFailure(attachErr)
		}
		return
	}
	if c == nil {
		return
	}
	x.mu.Lock()
	x.closers = append(x.closers, c)
	x.mu.Unlock()
	x.logger().Debug(ctx, "медиа подключено", logging.String("direction", direction), logging.String("path", path))
}

func (x *Executor) finalize(ctx context.Context) {
	if err := x.Close(); err != nil {
		x.logger().LogError(ctx, err, "ошибка закрытия медиа")
	}
	if x.Session == nil || x.Machine == nil {
		return
	}
	dump, err := x.Session.Dump(true, x.DumpIndent)
	if err != nil {
		x.logger().LogError(ctx, err, "не удалось снять итоговый отчет")
		return
	}
	x.Machine.SetFinalDump(dump)
}

// Close останавливает проигрывание и запись
func (x *Executor) Close() error {
	x.mu.Lock()
	closers := x.closers
	x.closers = nil
	x.mu.Unlock()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (x *Executor) logger() logging.Logger {
	if x.Logger == nil {
		return logging.Nop()
	}
	return x.Logger
}

// Drive передает уведомления сессии в автомат и выполняет действия,
// пока канал не закроется, автомат не завершится или ctx не будет отменен.
func Drive(ctx context.Context, notifications <-chan engine.Notification, m *Machine, x *Executor) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			tr := m.HandleNotification(n)
			if tr.Changed {
				x.logger().Debug(ctx, "состояние звонка",
					logging.String("from", string(tr.From)),
					logging.String("to", string(tr.To)),
					logging.Int("status", tr.StatusCode))
			}
			x.Execute(ctx, tr)
		}
	}
}
