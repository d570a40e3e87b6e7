package completion

import "testing"

func TestParse_CompleteMarker(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"plain", "work done\n<phase_complete>true</phase_complete>"},
		{"internal whitespace", "< phase_complete >  true  < /phase_complete >"},
		{"mixed case", "<PHASE_COMPLETE>True</PHASE_COMPLETE>"},
		{"mid response", "## Summary\ndone\n<phase_complete>true</phase_complete>\ntrailing notes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Parse(tt.response)
			if sig.Kind != KindComplete {
				t.Errorf("Parse() = %v, want complete", sig)
			}
		})
	}
}

func TestParse_CompleteFalseIsIncomplete(t *testing.T) {
	sig := Parse("<phase_complete>false</phase_complete>")
	if sig.Kind != KindIncomplete {
		t.Errorf("Parse() = %v, want incomplete", sig)
	}
}

func TestParse_BlockedMarker(t *testing.T) {
	sig := Parse("cannot proceed\n<phase_blocked>missing database credentials</phase_blocked>")
	if sig.Kind != KindBlocked {
		t.Fatalf("Parse() = %v, want blocked", sig)
	}
	if sig.Reason != "missing database credentials" {
		t.Errorf("Reason = %q", sig.Reason)
	}
}

func TestParse_BlockedReasonTrimmed(t *testing.T) {
	sig := Parse("<phase_blocked>\n  needs a decision on the schema\n</phase_blocked>")
	if sig.Reason != "needs a decision on the schema" {
		t.Errorf("Reason = %q", sig.Reason)
	}
}

func TestParse_BlockedWinsOverComplete(t *testing.T) {
	sig := Parse("<phase_complete>true</phase_complete>\n<phase_blocked>tests fail</phase_blocked>")
	if sig.Kind != KindBlocked {
		t.Errorf("Parse() = %v, want blocked when both markers present", sig)
	}
	if sig.Reason != "tests fail" {
		t.Errorf("Reason = %q", sig.Reason)
	}
}

func TestParse_NoMarkerIsIncomplete(t *testing.T) {
	for _, response := range []string{
		"",
		"just prose about the work",
		"<phase_complete>maybe</phase_complete>",
		"<phase_complete>true",
	} {
		if sig := Parse(response); sig.Kind != KindIncomplete {
			t.Errorf("Parse(%q) = %v, want incomplete", response, sig)
		}
	}
}

func TestParse_JSONResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Signal
	}{
		{"complete", `{"phase_complete": true}`, Complete()},
		{"complete false", `{"phase_complete": false}`, Incomplete()},
		{"blocked", `{"blocked": true, "blocked_reason": "no test runner"}`, Blocked("no test runner")},
		{"blocked wins", `{"phase_complete": true, "blocked": true, "blocked_reason": "x"}`, Blocked("x")},
		{"leading whitespace", "\n  {\"phase_complete\": true}", Complete()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.response); got != tt.want {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_JSONWithoutSignalKeysFallsThrough(t *testing.T) {
	// A JSON object with no signal keys but an embedded marker string
	// still resolves through marker matching.
	sig := Parse(`{"notes": "<phase_complete>true</phase_complete>"}`)
	if sig.Kind != KindComplete {
		t.Errorf("Parse() = %v, want complete via marker fallback", sig)
	}
}

func TestSignal_String(t *testing.T) {
	if got := Blocked("reason").String(); got != "blocked: reason" {
		t.Errorf("String() = %q", got)
	}
	if got := Complete().String(); got != "complete" {
		t.Errorf("String() = %q", got)
	}
	if got := Incomplete().String(); got != "incomplete" {
		t.Errorf("String() = %q", got)
	}
}
