package pjsua

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/callprobe/pkg/calldump"
)

const sampleDumpQ = `  [CONFIRMED] To: sip:1@kamailio;tag=as5f3c2a
    Call time: 00h:00m:30s, 1st res in 120 ms, conn in 150ms
    #0 audio PCMU @8kHz, sendrecv, peer=10.0.0.2:4000
       SRTP status: Not active Crypto-suite:
       RX pt=0, last update:00h:00m:00.020s ago
          total 1.5Kpkt 240.0KB (300.0KB +IP hdr) @avg=64.0Kbps/80.0Kbps
          pkt loss=0 (0.0%), discrd=0 (0.0%), dup=0 (0.0%), reord=0 (0.0%)
       TX pt=0, ptime=20, last update:00h:00m:00.020s ago
          total 1.4Kpkt 224.0KB (280.0KB +IP hdr) @avg=64.0Kbps/80.0Kbps
          pkt loss=0 (0.0%), dup=0 (0.0%), reorder=0 (0.0%)
`

func TestNormalizeDump(t *testing.T) {
	report, err := NormalizeDump(sampleDumpQ, "pjsua-run-0", 200, true, calldump.DefaultIndent)
	require.NoError(t, err)

	root, err := calldump.Parse(report)
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", root.Child("state").Value)
	assert.Equal(t, "sip:1@kamailio", root.Child("remote_uri").Value)
	assert.Equal(t, "200", root.Child("last_status").Value)

	stream := root.Child("media").Child("0")
	require.NotNil(t, stream)
	assert.Equal(t, "audio", stream.Child("type").Value)
	assert.Equal(t, "PCMU @8kHz", stream.Child("codec").Value)
	assert.Equal(t, "10.0.0.2:4000", stream.Child("peer").Value)

	stats, err := calldump.ParseStats(report)
	require.NoError(t, err)
	assert.Equal(t, "pjsua-run-0", stats.CallID)
	assert.Equal(t, calldump.DirectionStats{TotalPacketCnt: "1.5K", TotalPacketSize: "240.0KB"}, stats.Media["0"].RX)
	assert.Equal(t, calldump.DirectionStats{TotalPacketCnt: "1.4K", TotalPacketSize: "224.0KB"}, stats.Media["0"].TX)
}

func TestNormalizeDump_CallIDAndState(t *testing.T) {
	raw := "[DISCONNCTD] To: <sip:1@kamailio>\n  Call-ID: abc123@10.0.0.5\n"

	report, err := NormalizeDump(raw, "fallback", 0, true, "  ")
	require.NoError(t, err)

	stats, err := calldump.ParseStats(report)
	require.NoError(t, err)
	assert.Equal(t, "abc123@10.0.0.5", stats.CallID)
	assert.Empty(t, stats.Media)

	root, err := calldump.Parse(report)
	require.NoError(t, err)
	assert.Equal(t, "DISCONNECTED", root.Child("state").Value)
}

func TestNormalizeDump_WithoutMedia(t *testing.T) {
	report, err := NormalizeDump(sampleDumpQ, "id", 0, false, "")
	require.NoError(t, err)
	assert.NotContains(t, report, "media:")
}

func TestNormalizeDump_Garbage(t *testing.T) {
	_, err := NormalizeDump("No current calls", "id", 0, true, "")
	assert.Error(t, err)
}
