package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := WithAttempt(WithCallID(context.Background(), "abc@host"), 3)
	log.WithComponent("harness").Info(ctx, "attempt done",
		String("verdict", "Normal"), Int("status", 200))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "attempt done", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "harness", entry["component"])
	assert.Equal(t, "abc@host", entry["call_id"])
	assert.EqualValues(t, 3, entry["attempt"])
	assert.Equal(t, "Normal", entry["verdict"])
	assert.EqualValues(t, 200, entry["status"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	log.Info(context.Background(), "hidden")
	log.LogError(context.Background(), errors.New("boom"), "visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.True(t, strings.Contains(out, "error=boom"), out)
}

func TestLogger_BadOptions(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	log := Nop().WithFields(String("a", "b"))
	assert.NotPanics(t, func() {
		log.Info(context.TODO(), "nothing")
	})
}
