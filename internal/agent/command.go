package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// CommandInvoker runs the agent as a headless subprocess: the prompt is
// written to stdin and stdout is returned as the response content. This
// matches how the engine drives a local agent CLI.
type CommandInvoker struct {
	binPath string
	workdir string
	args    []string
	logger  *slog.Logger
}

// CommandOption configures a CommandInvoker.
type CommandOption func(*CommandInvoker)

// WithWorkdir sets the working directory for the agent process.
func WithWorkdir(dir string) CommandOption {
	return func(c *CommandInvoker) { c.workdir = dir }
}

// WithArgs sets extra arguments passed before the prompt.
func WithArgs(args ...string) CommandOption {
	return func(c *CommandInvoker) { c.args = args }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CommandOption {
	return func(c *CommandInvoker) { c.logger = l }
}

// NewCommandInvoker creates an invoker for the given agent binary.
func NewCommandInvoker(binPath string, opts ...CommandOption) *CommandInvoker {
	c := &CommandInvoker{
		binPath: binPath,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke runs the agent process and collects its output.
func (c *CommandInvoker) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Response, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := append([]string(nil), c.args...)
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}

	cmd := exec.CommandContext(ctx, c.binPath, args...)
	cmd.Dir = c.workdir
	cmd.Stdin = bytes.NewBufferString(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("invoking agent",
		"bin", c.binPath,
		"model", opts.Model,
		"prompt_len", len(prompt),
	)

	err := cmd.Run()
	if err != nil {
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		return nil, &TransportError{Op: "invoke", Timeout: timedOut, Err: err}
	}

	resp := decodeResponse(stdout.String())
	if resp.SessionID == "" {
		resp.SessionID = opts.SessionID
	}
	if resp.SessionID == "" {
		resp.SessionID = uuid.NewString()
	}
	resp.Duration = time.Since(start)
	return resp, nil
}

// decodeResponse interprets agent CLI output. Agents run with a JSON
// output format emit a result envelope carrying the response text plus
// session, token-usage and cost metadata; plain text passes through
// untouched with zero usage.
func decodeResponse(raw string) *Response {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") || !gjson.Valid(trimmed) {
		return &Response{Content: raw}
	}

	result := gjson.Get(trimmed, "result")
	if !result.Exists() {
		return &Response{Content: raw}
	}

	input := int(gjson.Get(trimmed, "usage.input_tokens").Int())
	output := int(gjson.Get(trimmed, "usage.output_tokens").Int())
	return &Response{
		Content:   result.String(),
		SessionID: gjson.Get(trimmed, "session_id").String(),
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
		CostUSD: gjson.Get(trimmed, "total_cost_usd").Float(),
	}
}
