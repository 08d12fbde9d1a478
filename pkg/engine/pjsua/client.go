package pjsua

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned when a command is sent before Connect
var ErrNotConnected = errors.New("pjsua cli: not connected")

// Client is a line-oriented connection to the pjsua CLI
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	// SendCommand writes one command and reads its output up to the next prompt
	SendCommand(ctx context.Context, command string) (*CommandResult, error)
	IsConnected() bool
}

// CommandResult is the cleaned output of a single CLI command
type CommandResult struct {
	Command  string
	Output   string
	Duration time.Duration
}
