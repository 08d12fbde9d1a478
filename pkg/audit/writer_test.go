package audit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	var echo bytes.Buffer
	w := NewWriter(path, &echo)

	for i := 1; i <= 3; i++ {
		rec := OperationalError(ts, fmt.Sprintf("call-%d", i), ReasonDump, nil, "", 0)
		require.NoError(t, w.Append(rec))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "previous run", lines[0])
	for i := 1; i <= 3; i++ {
		assert.Contains(t, lines[i], fmt.Sprintf("callid:call-%d ", i))
	}
	assert.Equal(t, string(data)[len("previous run\n"):], echo.String())
}

func TestWriter_OpenError(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing", "client.log"), nil)
	assert.Error(t, w.Append(OperationalError(ts, "x", ReasonDump, nil, "", 0)))
}
