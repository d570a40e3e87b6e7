// Package completion provides phase completion signal parsing for drover.
//
// This is the single detection implementation in the system. The executor
// is its only caller, so a whitespace-variant marker is treated identically
// on every execution path.
package completion

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind tags a completion signal.
type Kind int

const (
	// KindIncomplete means the agent has not signalled a terminal state
	// for this attempt. It is the safe default when nothing matches.
	KindIncomplete Kind = iota

	// KindComplete means the phase finished its work.
	KindComplete

	// KindBlocked means the phase cannot proceed without intervention.
	KindBlocked
)

// Signal is the parsed outcome of one phase attempt. Exactly one of the
// three kinds is produced per response; parsing never fails.
type Signal struct {
	Kind   Kind
	Reason string // blocked reason, empty otherwise
}

// Complete returns a complete signal.
func Complete() Signal { return Signal{Kind: KindComplete} }

// Blocked returns a blocked signal with the given reason.
func Blocked(reason string) Signal { return Signal{Kind: KindBlocked, Reason: reason} }

// Incomplete returns the no-terminal-marker signal.
func Incomplete() Signal { return Signal{Kind: KindIncomplete} }

func (s Signal) String() string {
	switch s.Kind {
	case KindComplete:
		return "complete"
	case KindBlocked:
		if s.Reason == "" {
			return "blocked"
		}
		return "blocked: " + s.Reason
	default:
		return "incomplete"
	}
}

// Marker patterns are whitespace-tolerant: recognition does not depend on
// indentation or a trailing newline.
var (
	completePattern = regexp.MustCompile(`(?is)<\s*phase_complete\s*>\s*(true|false)\s*<\s*/\s*phase_complete\s*>`)
	blockedPattern  = regexp.MustCompile(`(?is)<\s*phase_blocked\s*>(.*?)<\s*/\s*phase_blocked\s*>`)
)

// Parse classifies an agent response. A blocked marker wins over a
// completion marker: an agent that reports both is not done.
func Parse(response string) Signal {
	if sig, ok := parseJSON(response); ok {
		return sig
	}

	if m := blockedPattern.FindStringSubmatch(response); m != nil {
		return Blocked(strings.TrimSpace(m[1]))
	}

	if m := completePattern.FindStringSubmatch(response); m != nil {
		if strings.EqualFold(strings.TrimSpace(m[1]), "true") {
			return Complete()
		}
	}

	return Incomplete()
}

// parseJSON handles structured responses produced under a JSON output
// schema: {"phase_complete": bool, "blocked": bool, "blocked_reason": "..."}.
// Returns ok=false when the response is not a JSON object carrying either key.
func parseJSON(response string) (Signal, bool) {
	trimmed := strings.TrimSpace(response)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return Signal{}, false
	}

	blocked := gjson.Get(trimmed, "blocked")
	complete := gjson.Get(trimmed, "phase_complete")
	if !blocked.Exists() && !complete.Exists() {
		return Signal{}, false
	}

	if blocked.Exists() && blocked.Bool() {
		return Blocked(strings.TrimSpace(gjson.Get(trimmed, "blocked_reason").String())), true
	}
	if complete.Exists() && complete.Bool() {
		return Complete(), true
	}
	return Incomplete(), true
}
