package pjsua

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/arzzra/callprobe/pkg/engine"
)

var (
	// [0] CONFIRMED for sip:1@kamailio [ACTIVE]
	callListRe = regexp.MustCompile(`\[(\d+)\]\s+(\w+)\s+(?:for|from|to)\s+(\S+?)(?:\s+\[(\w+)\])?\s*$`)
	// Port #03[8KHz Mono] sip:1@kamailio  transmitting to: #0
	confPortRe = regexp.MustCompile(`Port\s+#(\d+)\[([^\]]*)\]\s+(.*?)\s+transmitting to:\s*(.*)$`)
	// Making call to sip:... / Call 0 ... / id=0
	callIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[Cc]all\s+(\d+)`),
		regexp.MustCompile(`\[(\d+)\]`),
		regexp.MustCompile(`id=(\d+)`),
	}
)

// CallEntry is one line of "call list"
type CallEntry struct {
	ID         int
	State      engine.SessionState
	RawState   string
	RemoteURI  string
	MediaState string
}

// MediaActive reports whether pjsua marked the audio as flowing
func (e CallEntry) MediaActive() bool {
	return e.MediaState == "ACTIVE"
}

// ParseCallList extracts calls from "call list" output, skipping unknown states
func ParseCallList(output string) []CallEntry {
	var calls []CallEntry
	for _, line := range strings.Split(output, "\n") {
		m := callListRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		state, ok := engine.ParseSessionState(m[2])
		if !ok {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		calls = append(calls, CallEntry{
			ID:         id,
			State:      state,
			RawState:   m[2],
			RemoteURI:  strings.Trim(m[3], "<>"),
			MediaState: m[4],
		})
	}
	return calls
}

// ConfPort is one conference bridge slot from "audio conf list"
type ConfPort struct {
	ID          int
	Format      string
	Name        string
	Connections []int
}

// ParseConfPorts extracts conference ports
func ParseConfPorts(output string) []ConfPort {
	var ports []ConfPort
	for _, line := range strings.Split(output, "\n") {
		m := confPortRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		port := ConfPort{ID: id, Format: m[2], Name: strings.TrimSpace(m[3])}
		for _, dst := range strings.FieldsFunc(m[4], func(r rune) bool { return r == ',' || r == ' ' }) {
			if n, err := strconv.Atoi(strings.TrimPrefix(dst, "#")); err == nil {
				port.Connections = append(port.Connections, n)
			}
		}
		ports = append(ports, port)
	}
	return ports
}

// parseCallID finds the call index in the "call new" reply
func parseCallID(output string) (int, bool) {
	for _, re := range callIDPatterns {
		if m := re.FindStringSubmatch(output); m != nil {
			if id, err := strconv.Atoi(m[1]); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}
