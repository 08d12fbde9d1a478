package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed движок уже остановлен
	ErrClosed = errors.New("engine closed")
	// ErrNoSession звонок с таким идентификатором не найден
	ErrNoSession = errors.New("session not found")
)

// SignalingError звонок завершился неуспешным финальным ответом
type SignalingError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *SignalingError) Error() string {
	msg := fmt.Sprintf("signaling failed: %d", e.StatusCode)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SignalingError) Unwrap() error {
	return e.Err
}

// IsFailureStatus true для финальных ответов, означающих отказ
func IsFailureStatus(code int) bool {
	return code >= 300
}
