package native

import (
	"time"

	"github.com/emiago/sipgo/sip"
)

// Options параметры встроенного движка
type Options struct {
	// ListenAddr адрес SIP транспорта UDP
	ListenAddr string
	// MediaIP адрес для Contact и SDP, пустой определяется по маршруту
	// до регистратора или вызываемой стороны
	MediaIP   string
	UserAgent string

	// Identity AOR учетной записи, используется в From
	Identity sip.Uri
	// Registrar nil отключает регистрацию
	Registrar *sip.Uri
	Username  string
	Password  string

	RegisterExpiry time.Duration
	// PacketTime длительность одного RTP пакета
	PacketTime time.Duration
}

func (o *Options) setDefaults() {
	if o.ListenAddr == "" {
		o.ListenAddr = "0.0.0.0:5060"
	}
	if o.UserAgent == "" {
		o.UserAgent = "callprobe"
	}
	if o.RegisterExpiry == 0 {
		o.RegisterExpiry = 5 * time.Minute
	}
	if o.PacketTime == 0 {
		o.PacketTime = 20 * time.Millisecond
	}
}
