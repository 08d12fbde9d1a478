// Package pjsua drives a pjsua binary through its telnet CLI and exposes it
// as an engine.Engine. Call state is learned by polling "call list", media
// is wired through the conference bridge and the per-call report comes from
// "call dump_q".
package pjsua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/callprobe/pkg/engine"
	"github.com/arzzra/callprobe/pkg/logging"
)

// Engine is an engine.Engine backed by a pjsua process
type Engine struct {
	opts       Options
	client     Client
	translator *CommandTranslator
	process    *exec.Cmd
	log        logging.Logger
	runID      string

	mu       sync.Mutex
	sessions map[int]*session
	closed   bool

	stopPoll chan struct{}
	pollWG   sync.WaitGroup
}

var _ engine.Engine = (*Engine)(nil)

// Start launches pjsua, connects to its CLI and starts state polling
func Start(ctx context.Context, opts Options, log logging.Logger) (*Engine, error) {
	opts.setDefaults()

	cmd := exec.Command(opts.BinaryPath, opts.Args()...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pjsua: %w", err)
	}

	client := NewTelnetClient(opts.TelnetHost, opts.TelnetPort, opts.CommandTimeout)
	if err := connectWithRetry(ctx, client, opts.StartupTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("failed to connect to pjsua: %w", err)
	}

	e := newEngine(client, opts, log)
	e.process = cmd
	e.startPolling()
	return e, nil
}

// NewWithClient wraps an already connected client, no process is managed
func NewWithClient(client Client, opts Options, log logging.Logger) *Engine {
	opts.setDefaults()
	e := newEngine(client, opts, log)
	e.startPolling()
	return e
}

func newEngine(client Client, opts Options, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		opts:       opts,
		client:     client,
		translator: NewCommandTranslator(),
		log:        log.WithComponent("pjsua"),
		runID:      uuid.NewString()[:8],
		sessions:   make(map[int]*session),
		stopPoll:   make(chan struct{}),
	}
}

// connectWithRetry waits for the telnet port to open while pjsua boots
func connectWithRetry(ctx context.Context, client Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := 100 * time.Millisecond
	for {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Connect(attemptCtx)
		attemptCancel()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// command translates and sends one CLI command
func (e *Engine) command(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()

	res, err := e.client.SendCommand(ctx, e.translator.Translate(cmd))
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// MakeCall places an outgoing call with "call new"
func (e *Engine) MakeCall(ctx context.Context, uri string, _ engine.CallOptions) (engine.Session, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}

	out, err := e.command(ctx, "call "+uri)
	if err != nil {
		return nil, fmt.Errorf("call new: %w", err)
	}
	if strings.Contains(strings.ToLower(out), "error") {
		return nil, &engine.SignalingError{Reason: out}
	}

	index, ok := parseCallID(out)
	if !ok {
		return nil, fmt.Errorf("failed to parse call ID from response: %s", out)
	}

	s := &session{
		engine:        e,
		index:         index,
		id:            fmt.Sprintf("pjsua-%s-%d", e.runID, index),
		remoteURI:     uri,
		notifications: make(chan engine.Notification, 32),
	}

	e.mu.Lock()
	old := e.sessions[index]
	e.sessions[index] = s
	e.mu.Unlock()
	if old != nil {
		old.finish(0)
	}

	s.emit(engine.Notification{
		Kind: engine.SessionStateChanged,
		Info: engine.SessionInfo{State: engine.StateCalling, RemoteURI: uri},
	})
	e.log.Debug(ctx, "call placed", logging.String("session", s.id), logging.Int("index", index))
	return s, nil
}

// HangupAll snapshots every live call report and hangs all calls up
func (e *Engine) HangupAll(ctx context.Context) error {
	for _, s := range e.liveSessions() {
		raw, err := e.command(ctx, "dump_q")
		if err != nil {
			e.log.LogError(ctx, err, "dump before hangup failed", logging.String("session", s.id))
			continue
		}
		s.setSnapshot(raw)
	}

	if _, err := e.command(ctx, "hangup_all"); err != nil {
		return fmt.Errorf("hangup all: %w", err)
	}
	return nil
}

// Close hangs up, stops polling and shuts the process down
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopPoll)
	e.pollWG.Wait()

	var errs []error
	if e.client.IsConnected() {
		if _, err := e.command(context.Background(), "quit"); err != nil && !isClosedConn(err) {
			errs = append(errs, err)
		}
		if err := e.client.Close(); err != nil && !isClosedConn(err) {
			errs = append(errs, err)
		}
	}

	for _, s := range e.liveSessions() {
		s.finish(0)
	}

	if e.process != nil {
		errs = append(errs, stopProcess(e.process))
	}
	return errors.Join(errs...)
}

// stopProcess asks pjsua to exit and kills it after a grace period
func stopProcess(cmd *exec.Cmd) error {
	_ = cmd.Process.Signal(syscall.SIGINT)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return nil
	}
}

func (e *Engine) liveSessions() []*session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s)
	}
	return out
}

func (e *Engine) startPolling() {
	e.pollWG.Add(1)
	go func() {
		defer e.pollWG.Done()
		ticker := time.NewTicker(e.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopPoll:
				return
			case <-ticker.C:
				e.poll()
			}
		}
	}()
}

// poll compares "call list" with the tracked sessions and emits notifications
func (e *Engine) poll() {
	live := e.liveSessions()
	if len(live) == 0 {
		return
	}

	out, err := e.command(context.Background(), "list_calls")
	if err != nil {
		e.log.Debug(context.Background(), "call list failed", logging.Err(err))
		return
	}

	listed := make(map[int]CallEntry)
	for _, c := range ParseCallList(out) {
		listed[c.ID] = c
	}

	for _, s := range live {
		entry, ok := listed[s.index]
		switch {
		case !ok && s.seen():
			// pjsua drops a call from the list once it is disconnected
			e.forget(s)
		case !ok:
			s.missed()
			if s.missedPolls() > 25 {
				e.forget(s)
			}
		case entry.State == engine.StateDisconnected:
			e.forget(s)
		default:
			s.observe(entry)
		}
	}
}

func (e *Engine) forget(s *session) {
	e.mu.Lock()
	if cur, ok := e.sessions[s.index]; ok && cur == s {
		delete(e.sessions, s.index)
	}
	e.mu.Unlock()
	s.finish(0)
}

func isClosedConn(err error) bool {
	return err != nil && (errors.Is(err, ErrNotConnected) || strings.Contains(err.Error(), "use of closed network connection") || strings.Contains(err.Error(), "EOF"))
}
