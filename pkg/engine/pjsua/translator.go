package pjsua

import (
	"fmt"
	"strings"
)

// CommandTranslator maps the legacy single-word pjsua commands onto the
// hierarchical CLI syntax ("hangup" -> "call hangup").
type CommandTranslator struct {
	mapping map[string]string
}

// NewCommandTranslator returns a translator for the commands the engine uses
func NewCommandTranslator() *CommandTranslator {
	return &CommandTranslator{
		mapping: map[string]string{
			"call":             "call new",
			"list_calls":       "call list",
			"hangup":           "call hangup",
			"hangup_all":       "call hangup_all",
			"dump_call":        "call dump_q",
			"dump_q":           "call dump_q",
			"audio_conf":       "audio conf list",
			"audio_connect":    "audio conf connect",
			"audio_disconnect": "audio conf disconnect",
			"dump_stat":        "stat dump",
			"quit":             "shutdown",
		},
	}
}

var hierarchicalPrefixes = []string{"call ", "acc ", "audio ", "im ", "video ", "stat ", "log ", "network "}

// Translate returns cmd in hierarchical form; unknown commands pass through
func (ct *CommandTranslator) Translate(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	lower := strings.ToLower(cmd)
	for _, prefix := range hierarchicalPrefixes {
		if strings.HasPrefix(lower, prefix) && !ct.isLegacyCall(cmd) {
			return cmd
		}
	}

	if full, ok := ct.mapping[cmd]; ok {
		return full
	}

	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return cmd
	}
	if full, ok := ct.mapping[parts[0]]; ok {
		return fmt.Sprintf("%s %s", full, strings.Join(parts[1:], " "))
	}
	return cmd
}

// isLegacyCall detects "call <uri>" which predates "call new <uri>"
func (ct *CommandTranslator) isLegacyCall(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) < 2 || parts[0] != "call" {
		return false
	}
	arg := strings.ToLower(parts[1])
	return strings.HasPrefix(arg, "sip:") || strings.HasPrefix(arg, "sips:") || strings.HasPrefix(arg, "<sip")
}
