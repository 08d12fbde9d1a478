package pjsua

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockClient implements Client for tests with canned responses per command
type MockClient struct {
	mu        sync.Mutex
	connected bool
	responses map[string]string
	commands  []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		connected: true,
		responses: make(map[string]string),
	}
}

func (m *MockClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) SetResponse(command, output string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[command] = output
}

func (m *MockClient) SendCommand(ctx context.Context, command string) (*CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	m.commands = append(m.commands, command)

	out, ok := m.responses[command]
	if !ok {
		switch {
		case strings.HasPrefix(command, "call new"):
			out = "Making call to sip:test@example.com\nCall 0 state changed to CALLING"
		default:
			out = "OK"
		}
	}
	return &CommandResult{Command: command, Output: out, Duration: time.Millisecond}, nil
}

// Sent returns the commands received so far
func (m *MockClient) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

func (m *MockClient) sentCommand(prefix string) bool {
	for _, c := range m.Sent() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
