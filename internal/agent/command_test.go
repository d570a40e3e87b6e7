package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestCommandInvoker_CapturesStdout(t *testing.T) {
	inv := NewCommandInvoker("cat")

	resp, err := inv.Invoke(context.Background(), "hello agent", InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Content != "hello agent" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.SessionID == "" {
		t.Error("SessionID should be generated when not resuming")
	}
	if resp.Duration <= 0 {
		t.Errorf("Duration = %v", resp.Duration)
	}
}

func TestCommandInvoker_ResumePreservesSession(t *testing.T) {
	inv := NewCommandInvoker("true")

	resp, err := inv.Invoke(context.Background(), "", InvokeOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", resp.SessionID)
	}
}

func TestCommandInvoker_SpawnFailureIsTransport(t *testing.T) {
	inv := NewCommandInvoker("/nonexistent/agent-binary")

	_, err := inv.Invoke(context.Background(), "prompt", InvokeOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTransport(err) {
		t.Errorf("error = %v, want transport error", err)
	}
	var te *TransportError
	if errors.As(err, &te) && te.Timeout {
		t.Error("spawn failure should not be marked as timeout")
	}
}

func TestCommandInvoker_TimeoutIsTransport(t *testing.T) {
	inv := NewCommandInvoker("sleep", WithArgs("5"))

	_, err := inv.Invoke(context.Background(), "", InvokeOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T, want *TransportError", err)
	}
	if !te.Timeout {
		t.Error("Timeout flag should be set")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Error() = %q", err)
	}
}

func TestCommandInvoker_DecodesJSONEnvelope(t *testing.T) {
	script := `cat > /dev/null; printf '%s' '{"result":"## Summary\ndone","session_id":"sess-9","usage":{"input_tokens":120,"output_tokens":40},"total_cost_usd":0.05}'`
	inv := NewCommandInvoker("sh", WithArgs("-c", script))

	resp, err := inv.Invoke(context.Background(), "prompt", InvokeOptions{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Content != "## Summary\ndone" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.SessionID != "sess-9" {
		t.Errorf("SessionID = %q, want envelope session", resp.SessionID)
	}
	if resp.Usage.InputTokens != 120 || resp.Usage.OutputTokens != 40 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Usage.TotalTokens != 160 {
		t.Errorf("TotalTokens = %d, want 160", resp.Usage.TotalTokens)
	}
	if resp.CostUSD != 0.05 {
		t.Errorf("CostUSD = %v", resp.CostUSD)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantContent string
		wantTokens  int
	}{
		{
			name:        "plain text passthrough",
			raw:         "just prose\n<phase_complete>true</phase_complete>",
			wantContent: "just prose\n<phase_complete>true</phase_complete>",
		},
		{
			name:        "json without result key passthrough",
			raw:         `{"notes": "not an envelope"}`,
			wantContent: `{"notes": "not an envelope"}`,
		},
		{
			name:        "malformed json passthrough",
			raw:         `{"result": "truncated`,
			wantContent: `{"result": "truncated`,
		},
		{
			name:        "envelope",
			raw:         `{"result":"text","usage":{"input_tokens":7,"output_tokens":3}}`,
			wantContent: "text",
			wantTokens:  10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeResponse(tt.raw)
			if resp.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", resp.Content, tt.wantContent)
			}
			if resp.Usage.TotalTokens != tt.wantTokens {
				t.Errorf("TotalTokens = %d, want %d", resp.Usage.TotalTokens, tt.wantTokens)
			}
		})
	}
}

func TestIsTransport(t *testing.T) {
	te := &TransportError{Op: "invoke", Err: errors.New("boom")}
	if !IsTransport(te) {
		t.Error("direct transport error not detected")
	}
	if !IsTransport(fmt.Errorf("wrapped: %w", te)) {
		t.Error("wrapped transport error not detected")
	}
	if IsTransport(errors.New("plain")) {
		t.Error("plain error misclassified as transport")
	}
	if IsTransport(nil) {
		t.Error("nil misclassified as transport")
	}
}
