package pjsua

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCLI answers every command line with a canned reply followed by the prompt
func fakeCLI(t *testing.T, replies map[string]string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// offer ECHO, the client is expected to refuse it
		greeting := append([]byte{iac, do, 1}, []byte("pjsua CLI\r\n>>> ")...)
		if _, err := conn.Write(greeting); err != nil {
			return
		}

		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(strings.ReplaceAll(line, string([]byte{iac, wont, 1}), ""))
			reply := replies[line]
			if _, err := conn.Write([]byte(line + "\r\n" + reply + "\r\n>>> ")); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String()
}

func TestTelnetClient_SendCommand(t *testing.T) {
	addr := fakeCLI(t, map[string]string{
		"call list": "[0] CONFIRMED for sip:1@kamailio [ACTIVE]",
	})
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	client := NewTelnetClient(host, p, 2*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, client.Connect(ctx))
	assert.True(t, client.IsConnected())

	res, err := client.SendCommand(ctx, "call list")
	require.NoError(t, err)
	assert.Equal(t, "[0] CONFIRMED for sip:1@kamailio [ACTIVE]", res.Output)

	entries := ParseCallList(res.Output)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].MediaActive())

	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())

	_, err = client.SendCommand(ctx, "call list")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestFilterIAC(t *testing.T) {
	in := []byte{'a', iac, do, 1, 'b', iac, will, 3, iac, iac, 'c'}
	data, reply := filterIAC(in)
	assert.Equal(t, []byte{'a', 'b', iac, 'c'}, data)
	assert.Equal(t, []byte{iac, wont, 1, iac, dont, 3}, reply)
}

func TestIncompleteIAC(t *testing.T) {
	assert.Equal(t, -1, incompleteIAC([]byte("abc")))
	assert.Equal(t, 2, incompleteIAC([]byte{'a', 'b', iac}))
	assert.Equal(t, 1, incompleteIAC([]byte{'a', iac, do}))
}

func TestLooksLikePrompt(t *testing.T) {
	assert.True(t, looksLikePrompt(">>> "))
	assert.True(t, looksLikePrompt("pjsua> "))
	assert.False(t, looksLikePrompt(">"))
	assert.False(t, looksLikePrompt("To: <sip:1@kamailio>"))
	assert.False(t, looksLikePrompt("Error>"))
	assert.False(t, looksLikePrompt("Making call"))
}

func TestStripEcho(t *testing.T) {
	assert.Equal(t, "line1\nline2", stripEcho("call list\r\nline1\r\nline2\r\n", "call list"))
	assert.Equal(t, "output", stripEcho("output\n", "call list"))
}
