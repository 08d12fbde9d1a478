package callfsm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/callprobe/pkg/engine"
)

type fakeSession struct {
	ch      chan engine.Notification
	dump    string
	dumpErr error
}

func (s *fakeSession) ID() string                                  { return "fake" }
func (s *fakeSession) Notifications() <-chan engine.Notification { return s.ch }
func (s *fakeSession) Dump(bool, string) (string, error)          { return s.dump, s.dumpErr }

func TestExecutor_AttachAndFinalize(t *testing.T) {
	sess := &fakeSession{dump: "call_id: x\n"}
	m := NewMachine()
	media := &fakeMedia{}
	x := &Executor{Session: sess, Machine: m, PlayFile: "in.wav", RecFile: "out.wav"}

	ctx := context.Background()
	x.Execute(ctx, m.HandleNotification(mediaUp(media)))
	x.Execute(ctx, m.HandleNotification(state(engine.StateConfirmed, 200)))

	assert.Equal(t, []string{"in.wav"}, media.played)
	assert.Equal(t, []string{"out.wav"}, media.recorded)

	x.Execute(ctx, m.HandleNotification(state(engine.StateDisconnected, 200)))
	assert.True(t, media.closed)

	dump, ok := m.FinalDump()
	require.True(t, ok)
	assert.Equal(t, "call_id: x\n", dump)
}

func TestExecutor_DegradedAttach(t *testing.T) {
	m := NewMachine()
	media := &fakeMedia{playErr: errors.New("file missing")}

	var failures []*MediaAttachmentError
	x := &Executor{
		Machine:  m,
		PlayFile: "missing.wav",
		RecFile:  "out.wav",
		OnAttachFailure: func(err *MediaAttachmentError) {
			failures = append(failures, err)
		},
	}

	m.HandleNotification(mediaUp(media))
	x.Execute(context.Background(), m.HandleNotification(state(engine.StateConfirmed, 200)))

	require.Len(t, failures, 1)
	assert.Equal(t, "playback", failures[0].Direction)
	assert.Equal(t, []string{"out.wav"}, media.recorded, "запись подключается несмотря на ошибку проигрывания")
	assert.Equal(t, engine.StateConfirmed, m.State())
}

func TestExecutor_FinalDumpError(t *testing.T) {
	sess := &fakeSession{dumpErr: engine.ErrNoSession}
	m := NewMachine()
	x := &Executor{Session: sess, Machine: m}

	x.Execute(context.Background(), m.HandleNotification(state(engine.StateDisconnected, 0)))
	_, ok := m.FinalDump()
	assert.False(t, ok)
}

func TestDrive(t *testing.T) {
	sess := &fakeSession{ch: make(chan engine.Notification, 8), dump: "call_id: d\n"}
	m := NewMachine()
	media := &fakeMedia{}
	x := &Executor{Session: sess, Machine: m, PlayFile: "in.wav"}

	sess.ch <- state(engine.StateCalling, 0)
	sess.ch <- mediaUp(media)
	sess.ch <- state(engine.StateConfirmed, 200)
	sess.ch <- state(engine.StateDisconnected, 200)

	finished := make(chan struct{})
	go func() {
		Drive(context.Background(), sess.ch, m, x)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Drive не завершился после DISCONNECTED")
	}

	assert.Equal(t, []string{"in.wav"}, media.played)
	dump, ok := m.FinalDump()
	require.True(t, ok)
	assert.Equal(t, "call_id: d\n", dump)
}

func TestDrive_ContextCancel(t *testing.T) {
	ch := make(chan engine.Notification)
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		Drive(ctx, ch, NewMachine(), &Executor{})
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Drive не завершился после отмены контекста")
	}
}
