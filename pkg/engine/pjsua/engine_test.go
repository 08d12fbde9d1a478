package pjsua

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/engine"
)

const sampleConfList = `Conference ports:
Port #00[16KHz Mono] Master/sound  transmitting to:
Port #01[16KHz Mono] input.16.wav  transmitting to:
Port #02[16KHz Mono] recordered.wav  transmitting to:
Port #03[8KHz Mono] sip:test@example.com  transmitting to:`

func nextNotification(t *testing.T, ch <-chan engine.Notification) engine.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "notification channel closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return engine.Notification{}
	}
}

func newTestEngine(t *testing.T) (*Engine, *MockClient) {
	t.Helper()
	mock := NewMockClient()
	e := NewWithClient(mock, Options{PollInterval: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { _ = e.Close() })
	return e, mock
}

func TestEngine_CallLifecycle(t *testing.T) {
	e, mock := newTestEngine(t)
	ctx := context.Background()

	sess, err := e.MakeCall(ctx, "sip:test@example.com", engine.CallOptions{})
	require.NoError(t, err)
	assert.Contains(t, sess.ID(), "pjsua-")
	assert.True(t, mock.sentCommand("call new sip:test@example.com"))

	ch := sess.Notifications()
	n := nextNotification(t, ch)
	assert.Equal(t, engine.StateCalling, n.Info.State)

	mock.SetResponse("call list", "[0] CONFIRMED for sip:test@example.com [ACTIVE]")

	n = nextNotification(t, ch)
	assert.Equal(t, engine.SessionStateChanged, n.Kind)
	assert.Equal(t, engine.StateConfirmed, n.Info.State)

	n = nextNotification(t, ch)
	require.Equal(t, engine.MediaStateChanged, n.Kind)
	require.NotNil(t, n.Media)

	mock.SetResponse("audio conf list", sampleConfList)
	player, err := n.Media.StartPlayback("./input.16.wav")
	require.NoError(t, err)
	recorder, err := n.Media.StartRecording("./recordered.wav")
	require.NoError(t, err)
	assert.True(t, mock.sentCommand("audio conf connect 1 3"))
	assert.True(t, mock.sentCommand("audio conf connect 3 2"))

	require.NoError(t, player.Close())
	require.NoError(t, recorder.Close())
	assert.True(t, mock.sentCommand("audio conf disconnect 1 3"))

	mock.SetResponse("call dump_q", sampleDumpQ)
	require.NoError(t, e.HangupAll(ctx))
	assert.True(t, mock.sentCommand("call hangup_all"))

	mock.SetResponse("call list", "No current calls")

	n = nextNotification(t, ch)
	assert.Equal(t, engine.StateDisconnected, n.Info.State)
	_, open := <-ch
	assert.False(t, open)

	report, err := sess.Dump(true, calldump.DefaultIndent)
	require.NoError(t, err)
	stats, err := calldump.ParseStats(report)
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), stats.CallID)
	assert.Equal(t, "1.5K", stats.Media["0"].RX.TotalPacketCnt)
}

func TestEngine_MakeCallError(t *testing.T) {
	e, mock := newTestEngine(t)
	mock.SetResponse("call new sip:bad", "Error: invalid URI")

	_, err := e.MakeCall(context.Background(), "sip:bad", engine.CallOptions{})
	var sigErr *engine.SignalingError
	require.ErrorAs(t, err, &sigErr)
}

func TestEngine_DumpAfterFinishWithoutSnapshot(t *testing.T) {
	e, mock := newTestEngine(t)

	sess, err := e.MakeCall(context.Background(), "sip:test@example.com", engine.CallOptions{})
	require.NoError(t, err)

	mock.SetResponse("call list", "[0] DISCONNCTD for sip:test@example.com")

	ch := sess.Notifications()
	for n := range ch {
		if n.Info.State == engine.StateDisconnected {
			break
		}
	}

	_, err = sess.Dump(true, "")
	assert.ErrorIs(t, err, engine.ErrNoSession)
}

func TestEngine_Close(t *testing.T) {
	mock := NewMockClient()
	e := NewWithClient(mock, Options{PollInterval: time.Hour}, nil)

	sess, err := e.MakeCall(context.Background(), "sip:test@example.com", engine.CallOptions{})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.True(t, mock.sentCommand("shutdown"))
	assert.False(t, mock.IsConnected())

	var last engine.Notification
	for n := range sess.Notifications() {
		last = n
	}
	assert.Equal(t, engine.StateDisconnected, last.Info.State)

	_, err = e.MakeCall(context.Background(), "sip:test@example.com", engine.CallOptions{})
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.NoError(t, e.Close())
}
