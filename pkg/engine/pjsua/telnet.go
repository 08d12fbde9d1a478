package pjsua

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Telnet option negotiation bytes
const (
	iac  byte = 255
	dont byte = 254
	do   byte = 253
	wont byte = 252
	will byte = 251
)

// maxPromptScan bounds how much greeting text is read while looking for the prompt
const maxPromptScan = 4096

// TelnetClient talks to pjsua started with --use-cli --cli-telnet-port
type TelnetClient struct {
	addr       string
	cmdTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	connected bool
	prompt    string
}

// NewTelnetClient creates a client for host:port
func NewTelnetClient(host string, port int, cmdTimeout time.Duration) *TelnetClient {
	if cmdTimeout <= 0 {
		cmdTimeout = 5 * time.Second
	}
	return &TelnetClient{
		addr:       net.JoinHostPort(host, fmt.Sprint(port)),
		cmdTimeout: cmdTimeout,
	}
}

// Connect dials the CLI, answers option negotiation and learns the prompt
func (c *TelnetClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c.conn = conn
	c.reader = bufio.NewReader(&negotiatingReader{conn: conn})

	prompt, err := c.scanPrompt()
	if err != nil {
		conn.Close()
		return fmt.Errorf("detect prompt: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.prompt = prompt
	c.connected = true
	return nil
}

// scanPrompt reads the greeting until a line ending in '>' stays unterminated
func (c *TelnetClient) scanPrompt() (string, error) {
	var line []byte
	for read := 0; read < maxPromptScan; read++ {
		b, err := c.reader.ReadByte()
		if err != nil {
			if isTimeout(err) || errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		if b == '\n' {
			line = line[:0]
			continue
		}
		line = append(line, b)
		if looksLikePrompt(string(line)) && c.reader.Buffered() == 0 {
			return strings.TrimSpace(string(line)), nil
		}
	}
	return ">", nil
}

// SendCommand writes command followed by CRLF and collects output until the prompt
func (c *TelnetClient) SendCommand(ctx context.Context, command string) (*CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(c.cmdTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	start := time.Now()
	if _, err := io.WriteString(c.conn, command+"\r\n"); err != nil {
		return nil, fmt.Errorf("write %q: %w", command, err)
	}

	raw, err := c.readUntilPrompt(ctx)
	res := &CommandResult{
		Command:  command,
		Output:   stripEcho(raw, command),
		Duration: time.Since(start),
	}
	return res, err
}

func (c *TelnetClient) readUntilPrompt(ctx context.Context) (string, error) {
	var out strings.Builder
	var line []byte

	for {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}
		b, err := c.reader.ReadByte()
		if err != nil {
			if isTimeout(err) && c.isPrompt(string(line)) {
				return out.String(), nil
			}
			return out.String(), err
		}

		if b == '\n' {
			if !c.isPrompt(string(line)) {
				out.Write(line)
				out.WriteByte('\n')
			}
			line = line[:0]
			continue
		}
		line = append(line, b)

		if c.reader.Buffered() == 0 && c.isPrompt(string(line)) {
			return out.String(), nil
		}
	}
}

func (c *TelnetClient) isPrompt(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if c.prompt != "" && c.prompt != ">" && trimmed == c.prompt {
		return true
	}
	return looksLikePrompt(line)
}

// Close drops the connection
func (c *TelnetClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}

// IsConnected reports whether Connect succeeded and Close was not called
func (c *TelnetClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// looksLikePrompt matches pjsua prompts such as ">>> " or "pjsua> "
func looksLikePrompt(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ">") {
		return false
	}
	if strings.Contains(strings.ToLower(trimmed), "error") {
		return false
	}
	// a lone '>' is usually part of output, e.g. "sip:a@b>"
	return len(trimmed) > 1 && !strings.ContainsAny(trimmed, "<@:")
}

// stripEcho removes the echoed command line and surrounding whitespace
func stripEcho(output, command string) string {
	lines := strings.Split(strings.ReplaceAll(output, "\r", ""), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// negotiatingReader filters telnet IAC sequences out of the stream and
// refuses every option the server offers.
type negotiatingReader struct {
	conn    net.Conn
	pending []byte
}

func (r *negotiatingReader) Read(p []byte) (int, error) {
	for {
		buf := make([]byte, len(p))
		n, err := r.conn.Read(buf)
		data, reply := filterIAC(append(r.pending, buf[:n]...))
		r.pending = r.pending[:0]

		// keep an incomplete trailing command for the next read
		if cut := incompleteIAC(data); cut >= 0 {
			r.pending = append(r.pending, data[cut:]...)
			data = data[:cut]
		}

		if len(reply) > 0 {
			if _, werr := r.conn.Write(reply); werr != nil {
				return 0, werr
			}
		}
		if len(data) > 0 || err != nil {
			return copy(p, data), err
		}
	}
}

// filterIAC strips complete IAC commands and builds the refusal reply
func filterIAC(in []byte) (data, reply []byte) {
	data = make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] != iac || i+1 >= len(in) {
			data = append(data, in[i])
			continue
		}
		cmd := in[i+1]
		switch cmd {
		case iac:
			data = append(data, iac)
			i++
		case do, dont, will, wont:
			if i+2 >= len(in) {
				data = append(data, in[i:]...)
				return data, reply
			}
			opt := in[i+2]
			if cmd == do {
				reply = append(reply, iac, wont, opt)
			} else if cmd == will {
				reply = append(reply, iac, dont, opt)
			}
			i += 2
		default:
			i++
		}
	}
	return data, reply
}

// incompleteIAC returns the index of a truncated trailing IAC command or -1
func incompleteIAC(data []byte) int {
	n := len(data)
	switch {
	case n >= 1 && data[n-1] == iac:
		return n - 1
	case n >= 2 && data[n-2] == iac && data[n-1] >= will:
		return n - 2
	}
	return -1
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
