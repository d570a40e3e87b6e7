package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Formatting(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeAgentUnavailable, "agent invocation failed", cause).
		WithWhy("the agent binary could not be reached")

	msg := err.Error()
	if !strings.Contains(msg, "agent invocation failed") {
		t.Errorf("Error() = %q", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() = %q, should include cause", msg)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(CodeNotInitialized, "not a drover project").
		WithWhy("no .drover directory was found").
		WithFix("run 'drover init' in the project root")

	msg := err.UserMessage()
	for _, want := range []string{"Error:", "Why:", "Fix:", "drover init"} {
		if !strings.Contains(msg, want) {
			t.Errorf("UserMessage() = %q, missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(CodeCommitFailed, "state commit failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestCodeOf(t *testing.T) {
	err := New(CodeTaskNotFound, "no such task")
	wrapped := fmt.Errorf("loading: %w", err)

	if got := CodeOf(wrapped); got != CodeTaskNotFound {
		t.Errorf("CodeOf() = %q", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if !Is(wrapped, CodeTaskNotFound) {
		t.Error("Is() should match through wrapping")
	}
	if Is(wrapped, CodeCommitFailed) {
		t.Error("Is() matched the wrong code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeTaskNotFound, 404},
		{CodeTaskInvalidState, 400},
		{CodeTaskRunning, 409},
		{CodeAgentTimeout, 504},
		{CodeAgentUnavailable, 503},
		{CodeCommitFailed, 500},
		{Code("UNKNOWN_CODE"), 500},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestMarshalJSON_IncludesCause(t *testing.T) {
	err := Wrap(CodeTemplateInvalid, "bad template", stderrors.New("nested conditional"))

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatalf("Marshal() error = %v", merr)
	}
	var decoded map[string]any
	if uerr := json.Unmarshal(data, &decoded); uerr != nil {
		t.Fatalf("Unmarshal() error = %v", uerr)
	}
	if decoded["code"] != string(CodeTemplateInvalid) {
		t.Errorf("code = %v", decoded["code"])
	}
	if decoded["cause"] != "nested conditional" {
		t.Errorf("cause = %v", decoded["cause"])
	}
}
