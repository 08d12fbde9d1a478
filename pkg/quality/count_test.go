package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"500", 500},
		{"1.5K", 1500},
		{"2K", 2000},
		{"80.0KB", 80000},
		{"3M", 3000000},
		{" 42 ", 42},
	}

	for _, tt := range tests {
		got, err := ParseCount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseCount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-5", "1.5X"} {
		_, err := ParseCount(in)
		var cErr *CountParseError
		assert.ErrorAs(t, err, &cErr, in)
	}
}

func TestCountRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 999, 1000, 1500, 25000, 2000000} {
		got, err := ParseCount(FormatCount(n))
		require.NoError(t, err, n)
		assert.Equal(t, n, got)
	}
}
