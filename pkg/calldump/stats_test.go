package calldump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStats(t *testing.T) {
	stats, err := ParseStats(sampleReport)
	require.NoError(t, err)

	assert.Equal(t, "4f1c2a@10.0.0.5", stats.CallID)
	require.Contains(t, stats.Media, "0")
	assert.Equal(t, "500", stats.Media["0"].RX.TotalPacketCnt)
	assert.Equal(t, "80.0KB", stats.Media["0"].RX.TotalPacketSize)
	assert.Equal(t, "1.2K", stats.Media["0"].TX.TotalPacketCnt)
	assert.Equal(t, "192.0KB", stats.Media["0"].TX.TotalPacketSize)
}

func TestParseStats_NoMedia(t *testing.T) {
	// Звонок завершился до согласования медиа
	stats, err := ParseStats("call_id: abc\nstate: DISCONNECTED\nlast_status: 486\n")
	require.NoError(t, err)
	assert.Equal(t, "abc", stats.CallID)
	assert.Empty(t, stats.Media)

	stats, err = ParseStats("call_id: abc\nmedia:\n")
	require.NoError(t, err)
	assert.Empty(t, stats.Media)
}

func TestParseStats_MissingCallID(t *testing.T) {
	_, err := ParseStats("media:\n    0:\n        rx:\n            total_packet_cnt: 1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, &MalformedDumpError{})
}

func TestExtract_OptionalCallIDAndRequiredMedia(t *testing.T) {
	root, err := Parse("state: NULL\n")
	require.NoError(t, err)

	labels := DefaultLabels()
	labels.RequireCallID = false
	stats, err := Extract(root, labels)
	require.NoError(t, err)
	assert.Empty(t, stats.CallID)

	labels.RequireMedia = true
	_, err = Extract(root, labels)
	assert.ErrorIs(t, err, &MalformedDumpError{})
}

func TestExtract_DuplicateIndexLastWins(t *testing.T) {
	report := `call_id: dup
media:
    0:
        rx:
            total_packet_cnt: 1
    0:
        rx:
            total_packet_cnt: 2
`
	stats, err := ParseStats(report)
	require.NoError(t, err)
	require.Len(t, stats.Media, 1)
	assert.Equal(t, "2", stats.Media["0"].RX.TotalPacketCnt)
}

func TestFormat_RoundTrip(t *testing.T) {
	want := &CallStats{
		CallID: "round@trip",
		Media: map[string]MediaStats{
			"0": {
				RX: DirectionStats{TotalPacketCnt: "100", TotalPacketSize: "16.0KB"},
				TX: DirectionStats{TotalPacketCnt: "99", TotalPacketSize: "15.8KB"},
			},
			"1": {
				RX: DirectionStats{TotalPacketCnt: "0", TotalPacketSize: "0B"},
				TX: DirectionStats{TotalPacketCnt: "3", TotalPacketSize: "480B"},
			},
		},
	}

	for _, indent := range []string{"    ", "  ", "\t"} {
		got, err := ParseStats(Format(want, indent))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
