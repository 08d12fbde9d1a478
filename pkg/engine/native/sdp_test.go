package native

import (
	"testing"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOffer(t *testing.T) {
	body, err := buildOffer("10.0.0.5", 40000, 12345, 20*time.Millisecond)
	require.NoError(t, err)

	var desc sdp.SessionDescription
	require.NoError(t, desc.Unmarshal(body))

	assert.Equal(t, "10.0.0.5", desc.Origin.UnicastAddress)
	assert.Equal(t, uint64(12345), desc.Origin.SessionID)
	require.Len(t, desc.MediaDescriptions, 1)

	audio := desc.MediaDescriptions[0]
	assert.Equal(t, "audio", audio.MediaName.Media)
	assert.Equal(t, 40000, audio.MediaName.Port.Value)
	assert.Equal(t, []string{"RTP", "AVP"}, audio.MediaName.Protos)
	assert.Equal(t, []string{"0", "8"}, audio.MediaName.Formats)

	ptime, ok := audio.Attribute("ptime")
	require.True(t, ok)
	assert.Equal(t, "20", ptime)
	_, ok = audio.Attribute("sendrecv")
	assert.True(t, ok)

	codec, err := desc.GetCodecForPayloadType(0)
	require.NoError(t, err)
	assert.Equal(t, "PCMU", codec.Name)
}

const sampleAnswer = "v=0\r\n" +
	"o=- 1 1 IN IP4 10.0.0.2\r\n" +
	"s=-\r\n" +
	"c=IN IP4 10.0.0.2\r\n" +
	"t=0 0\r\n" +
	"m=audio 4000 RTP/AVP 8 101\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"a=sendrecv\r\n"

func TestParseAnswer(t *testing.T) {
	rm, err := parseAnswer([]byte(sampleAnswer))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:4000", rm.Addr.String())
	assert.Equal(t, CodecPCMA, rm.Codec)
	assert.Equal(t, "sendrecv", rm.Direction)
}

func TestParseAnswer_MediaLevelConnectionAndDirection(t *testing.T) {
	answer := "v=0\r\n" +
		"o=- 1 1 IN IP4 10.0.0.2\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 0\r\n" +
		"c=IN IP4 192.168.1.7\r\n" +
		"a=recvonly\r\n"

	rm, err := parseAnswer([]byte(answer))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7:5004", rm.Addr.String())
	assert.Equal(t, CodecPCMU, rm.Codec)
	assert.Equal(t, "recvonly", rm.Direction)
}

func TestParseAnswer_Errors(t *testing.T) {
	rejected := "v=0\r\no=- 1 1 IN IP4 10.0.0.2\r\ns=-\r\nc=IN IP4 10.0.0.2\r\nt=0 0\r\nm=audio 0 RTP/AVP 0\r\n"
	_, err := parseAnswer([]byte(rejected))
	assert.ErrorIs(t, err, errNoAudio)

	noCommon := "v=0\r\no=- 1 1 IN IP4 10.0.0.2\r\ns=-\r\nc=IN IP4 10.0.0.2\r\nt=0 0\r\nm=audio 4000 RTP/AVP 9\r\na=rtpmap:9 G722/8000\r\n"
	_, err = parseAnswer([]byte(noCommon))
	assert.Error(t, err)

	video := "v=0\r\no=- 1 1 IN IP4 10.0.0.2\r\ns=-\r\nc=IN IP4 10.0.0.2\r\nt=0 0\r\nm=video 4000 RTP/AVP 96\r\n"
	_, err = parseAnswer([]byte(video))
	assert.ErrorIs(t, err, errNoAudio)
}
