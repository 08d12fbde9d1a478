package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/arzzra/callprobe/pkg/callfsm"
	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
	"github.com/arzzra/callprobe/pkg/metrics"
)

// activeCall сессия с автоматом и горутиной, передающей уведомления
type activeCall struct {
	session  engine.Session
	machine  *callfsm.Machine
	executor *callfsm.Executor
	log      logging.Logger

	cancelPump context.CancelFunc
	pumpDone   chan struct{}
}

// startCall совершает звонок и запускает передачу уведомлений в автомат
func startCall(ctx context.Context, eng engine.Engine, opts Options, m *metrics.Collector, log logging.Logger) (*activeCall, error) {
	sess, err := eng.MakeCall(ctx, opts.Target, engine.CallOptions{Headers: opts.Headers})
	if err != nil {
		return nil, err
	}

	machine := callfsm.NewMachine()
	executor := &callfsm.Executor{
		Session:    sess,
		Machine:    machine,
		PlayFile:   opts.PlayFile,
		RecFile:    opts.RecFile,
		DumpIndent: opts.DumpIndent,
		Logger:     log,
		OnAttachFailure: func(err *callfsm.MediaAttachmentError) {
			m.MediaAttachFailed(err.Direction)
		},
	}

	// Передача уведомлений живет дольше ctx попытки: после прерывания
	// автомат должен увидеть DISCONNECTED
	pumpCtx, cancel := context.WithCancel(context.Background())
	call := &activeCall{
		session:    sess,
		machine:    machine,
		executor:   executor,
		log:        log,
		cancelPump: cancel,
		pumpDone:   make(chan struct{}),
	}
	go func() {
		defer close(call.pumpDone)
		callfsm.Drive(logging.WithCallID(pumpCtx, sess.ID()), sess.Notifications(), machine, executor)
	}()

	log.Info(logging.WithCallID(ctx, sess.ID()), "call started", logging.String("target", opts.Target))
	return call, nil
}

// runAndDump держит звонок Duration (или до раннего завершения),
// завершает его, выжидает Grace и возвращает итоговый отчет
func (c *activeCall) runAndDump(ctx context.Context, eng engine.Engine, opts Options) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.machine.Done():
		c.log.Info(ctx, "call ended before duration elapsed",
			logging.Int("status", c.machine.LastStatusCode()))
	case <-time.After(opts.Duration):
	}

	hangupCtx, cancel := context.WithTimeout(ctx, opts.HangupTimeout)
	err := eng.HangupAll(hangupCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.log.LogError(ctx, err, "hangup failed")
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(opts.Grace):
	}

	if dump, ok := c.machine.FinalDump(); ok {
		return dump, nil
	}
	dump, err := c.session.Dump(true, opts.DumpIndent)
	if err != nil {
		return "", fmt.Errorf("dump %s: %w", c.session.ID(), err)
	}
	return dump, nil
}

// abandon завершает звонки с собственным таймаутом, ctx попытки уже отменен
func (c *activeCall) abandon(eng engine.Engine, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := eng.HangupAll(ctx); err != nil {
		c.log.LogError(ctx, err, "hangup on abandon failed")
	}
}

// stop останавливает передачу уведомлений и медиа
func (c *activeCall) stop() {
	c.cancelPump()
	<-c.pumpDone
	if err := c.executor.Close(); err != nil {
		c.log.LogError(context.Background(), err, "media close failed")
	}
}

// PlaceCall один звонок без классификации: держит звонок opts.Duration и
// возвращает итоговый отчет
func PlaceCall(ctx context.Context, eng engine.Engine, opts Options, log logging.Logger) (string, error) {
	opts.setDefaults()
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("call")

	call, err := startCall(ctx, eng, opts, nil, log)
	if err != nil {
		return "", err
	}
	defer call.stop()

	report, err := call.runAndDump(ctx, eng, opts)
	if err != nil {
		if ctx.Err() != nil {
			call.abandon(eng, opts.HangupTimeout)
			return "", ErrInterrupted
		}
		return "", err
	}

	select {
	case <-call.machine.Done():
	case <-time.After(opts.TeardownTimeout):
		call.abandon(eng, opts.HangupTimeout)
	case <-ctx.Done():
		call.abandon(eng, opts.HangupTimeout)
	}
	return report, nil
}
