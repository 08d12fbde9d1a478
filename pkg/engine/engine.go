// Package engine описывает узкий интерфейс внешнего движка сигнализации и
// медиа, через который работает зонд. Реализации находятся в подпакетах
// pjsua (управление бинарником pjsua через CLI) и native (sipgo + pion).
package engine

import (
	"context"
	"io"
)

// SessionState состояние жизненного цикла звонка
type SessionState string

const (
	StateNull         SessionState = "NULL"
	StateCalling      SessionState = "CALLING"
	StateEarly        SessionState = "EARLY"
	StateConnecting   SessionState = "CONNECTING"
	StateConfirmed    SessionState = "CONFIRMED"
	StateDisconnected SessionState = "DISCONNECTED"
)

// Order порядковый номер состояния в жизненном цикле, -1 для неизвестных
func (s SessionState) Order() int {
	switch s {
	case StateNull:
		return 0
	case StateCalling:
		return 1
	case StateEarly:
		return 2
	case StateConnecting:
		return 3
	case StateConfirmed:
		return 4
	case StateDisconnected:
		return 5
	default:
		return -1
	}
}

// ParseSessionState принимает как канонические имена, так и сокращения pjsua
// ("DISCONNCTD").
func ParseSessionState(s string) (SessionState, bool) {
	switch s {
	case "NULL":
		return StateNull, true
	case "CALLING":
		return StateCalling, true
	case "EARLY", "INCOMING":
		return StateEarly, true
	case "CONNECTING":
		return StateConnecting, true
	case "CONFIRMED":
		return StateConfirmed, true
	case "DISCONNECTED", "DISCONNCTD":
		return StateDisconnected, true
	default:
		return "", false
	}
}

// NotificationKind тип уведомления от движка
type NotificationKind int

const (
	SessionStateChanged NotificationKind = iota + 1
	MediaStateChanged
)

func (k NotificationKind) String() string {
	switch k {
	case SessionStateChanged:
		return "session_state"
	case MediaStateChanged:
		return "media_state"
	default:
		return "unknown"
	}
}

// SessionInfo снимок состояния сессии
type SessionInfo struct {
	State          SessionState
	LastStatusCode int
	RemoteURI      string
}

// Notification асинхронное уведомление о сессии.
//
// Для SessionStateChanged заполнено Info, для MediaStateChanged Media
// (nil, если медиа стало неактивным).
type Notification struct {
	Kind  NotificationKind
	Info  SessionInfo
	Media LocalMedia
}

// LocalMedia локальный медиапорт активного звонка
type LocalMedia interface {
	// StartPlayback проигрывает файл в исходящее направление
	StartPlayback(path string) (io.Closer, error)
	// StartRecording записывает входящее направление в файл
	StartRecording(path string) (io.Closer, error)
}

// CallOptions параметры исходящего звонка
type CallOptions struct {
	// Headers дополнительные заголовки INVITE
	Headers map[string]string
}

// Session исходящий звонок
type Session interface {
	ID() string
	// Notifications закрывается после уведомления о DISCONNECTED
	Notifications() <-chan Notification
	// Dump возвращает отчет о звонке в каноническом формате с отступом indent
	Dump(includeMedia bool, indent string) (string, error)
}

// Engine движок, способный совершать исходящие звонки
type Engine interface {
	MakeCall(ctx context.Context, uri string, opts CallOptions) (Session, error)
	// HangupAll завершает все активные звонки
	HangupAll(ctx context.Context) error
	Close() error
}
