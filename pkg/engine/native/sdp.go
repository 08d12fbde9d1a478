package native

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// Codec аудиокодек G.711, который движок умеет передавать
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
}

var (
	CodecPCMU = Codec{PayloadType: 0, Name: "PCMU", ClockRate: 8000}
	CodecPCMA = Codec{PayloadType: 8, Name: "PCMA", ClockRate: 8000}
)

// supportedCodecs в порядке предпочтения
var supportedCodecs = []Codec{CodecPCMU, CodecPCMA}

var errNoAudio = errors.New("в SDP нет аудио потока")

// buildOffer формирует SDP offer с одним аудио потоком
func buildOffer(ip string, port int, sessionID uint64, ptime time.Duration) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: ip,
		},
		SessionName: "callprobe",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: ip},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	audio := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:  "audio",
			Port:   sdp.RangedPort{Value: port},
			Protos: []string{"RTP", "AVP"},
		},
	}
	for _, c := range supportedCodecs {
		audio = audio.WithCodec(c.PayloadType, c.Name, c.ClockRate, 0, "")
	}
	audio = audio.
		WithValueAttribute("ptime", strconv.Itoa(int(ptime/time.Millisecond))).
		WithPropertyAttribute("sendrecv")

	return desc.WithMedia(audio).Marshal()
}

// remoteMedia параметры удаленной стороны из SDP answer
type remoteMedia struct {
	Addr      *net.UDPAddr
	Codec     Codec
	Direction string
}

// parseAnswer извлекает адрес RTP и выбранный кодек первого аудио потока
func parseAnswer(body []byte) (*remoteMedia, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("разбор SDP: %w", err)
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		if md.MediaName.Port.Value == 0 {
			return nil, fmt.Errorf("аудио поток отклонен: %w", errNoAudio)
		}

		conn := md.ConnectionInformation
		if conn == nil {
			conn = desc.ConnectionInformation
		}
		if conn == nil || conn.Address == nil {
			return nil, errors.New("в SDP нет адреса соединения")
		}
		ip := net.ParseIP(conn.Address.Address)
		if ip == nil {
			addrs, err := net.LookupIP(conn.Address.Address)
			if err != nil || len(addrs) == 0 {
				return nil, fmt.Errorf("неизвестный адрес %q", conn.Address.Address)
			}
			ip = addrs[0]
		}

		codec, err := selectCodec(&desc, md.MediaName.Formats)
		if err != nil {
			return nil, err
		}

		rm := &remoteMedia{
			Addr:      &net.UDPAddr{IP: ip, Port: md.MediaName.Port.Value},
			Codec:     codec,
			Direction: "sendrecv",
		}
		for _, dir := range []string{"sendrecv", "sendonly", "recvonly", "inactive"} {
			if _, ok := md.Attribute(dir); ok {
				rm.Direction = dir
			}
		}
		return rm, nil
	}
	return nil, errNoAudio
}

// selectCodec выбирает первый поддерживаемый формат в порядке answer
func selectCodec(desc *sdp.SessionDescription, formats []string) (Codec, error) {
	for _, f := range formats {
		pt, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			continue
		}
		name := ""
		if c, err := desc.GetCodecForPayloadType(uint8(pt)); err == nil {
			name = c.Name
		}
		for _, c := range supportedCodecs {
			if c.PayloadType == uint8(pt) && (name == "" || strings.EqualFold(name, c.Name)) {
				return c, nil
			}
		}
	}
	return Codec{}, fmt.Errorf("нет общего кодека среди %v", formats)
}
