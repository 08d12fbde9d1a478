package pjsua

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/arzzra/callprobe/pkg/calldump"
	"github.com/arzzra/callprobe/pkg/engine"
)

var (
	// [CONFIRMED] To: sip:1@kamailio;tag=abc
	dumpStateRe = regexp.MustCompile(`^\[(\w+)\]\s+To:\s*(\S+)`)
	// #0 audio PCMU @8kHz, sendrecv, peer=10.0.0.2:4000
	dumpStreamRe = regexp.MustCompile(`^#(\d+)\s+(\w+)\s+([^,]*)(?:,\s*(\w+))?(?:.*peer=(\S+))?`)
	// RX pt=0, last update:...
	dumpDirRe = regexp.MustCompile(`^(RX|TX)\s+pt=`)
	// total 1.5Kpkt 240.0KB (300.0KB +IP hdr) @avg=...
	dumpTotalRe = regexp.MustCompile(`^total\s+(\S+?)pkt\s+(\S+?B)\b`)
	// Call-ID: abc@host
	dumpCallIDRe = regexp.MustCompile(`Call-ID:\s*(\S+)`)
)

type dumpStream struct {
	index string
	kind  string
	codec string
	dir   string
	peer  string
	rx    calldump.DirectionStats
	tx    calldump.DirectionStats
}

type dumpSummary struct {
	callID    string
	state     string
	remoteURI string
	streams   []*dumpStream
}

// parseCallDump reads the free-form output of "call dump_q"
func parseCallDump(raw string) (*dumpSummary, error) {
	sum := &dumpSummary{}
	var stream *dumpStream
	var dir *calldump.DirectionStats

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := dumpCallIDRe.FindStringSubmatch(line); m != nil && sum.callID == "" {
			sum.callID = m[1]
		}
		if m := dumpStateRe.FindStringSubmatch(line); m != nil {
			sum.state = m[1]
			sum.remoteURI = strings.Trim(strings.SplitN(m[2], ";", 2)[0], "<>")
			continue
		}
		if m := dumpStreamRe.FindStringSubmatch(line); m != nil {
			stream = &dumpStream{
				index: m[1],
				kind:  m[2],
				codec: strings.TrimSpace(m[3]),
				dir:   m[4],
				peer:  m[5],
			}
			sum.streams = append(sum.streams, stream)
			dir = nil
			continue
		}
		if stream == nil {
			continue
		}
		if m := dumpDirRe.FindStringSubmatch(line); m != nil {
			if m[1] == "RX" {
				dir = &stream.rx
			} else {
				dir = &stream.tx
			}
			continue
		}
		if m := dumpTotalRe.FindStringSubmatch(line); m != nil && dir != nil {
			dir.TotalPacketCnt = m[1]
			dir.TotalPacketSize = m[2]
			dir = nil
		}
	}

	if sum.state == "" && len(sum.streams) == 0 {
		return nil, fmt.Errorf("pjsua dump: no call information in %d bytes", len(raw))
	}
	return sum, nil
}

// NormalizeDump converts "call dump_q" output into the canonical indented
// report. fallbackID is used when the dump carries no Call-ID.
func NormalizeDump(raw, fallbackID string, lastStatus int, includeMedia bool, indent string) (string, error) {
	sum, err := parseCallDump(raw)
	if err != nil {
		return "", err
	}

	callID := sum.callID
	if callID == "" {
		callID = fallbackID
	}
	state := sum.state
	if s, ok := engine.ParseSessionState(state); ok {
		state = string(s)
	}

	b := calldump.NewReportBuilder(indent)
	b.Field("call_id", callID)
	b.Field("state", state)
	if sum.remoteURI != "" {
		b.Field("remote_uri", sum.remoteURI)
	}
	b.Field("last_status", strconv.Itoa(lastStatus))

	if !includeMedia {
		return b.String(), nil
	}

	b.Section("media", func(b *calldump.ReportBuilder) {
		for _, s := range sum.streams {
			s := s
			b.Section(s.index, func(b *calldump.ReportBuilder) {
				b.Field("type", s.kind)
				if s.codec != "" {
					b.Field("codec", s.codec)
				}
				if s.dir != "" {
					b.Field("dir", s.dir)
				}
				if s.peer != "" {
					b.Field("peer", s.peer)
				}
				b.Direction("rx", s.rx)
				b.Direction("tx", s.tx)
			})
		}
	})
	return b.String(), nil
}
