package template

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	varPattern  = regexp.MustCompile(`\{\{([A-Z_][A-Z0-9_]*)\}\}`)
	condPattern = regexp.MustCompile(`(?s)\{\{#if ([A-Z_][A-Z0-9_]*)\}\}(.*?)\{\{/if\}\}`)
)

// Error reports a malformed template. It is fatal for the phase attempt:
// the same template will fail the same way, so it is surfaced to an
// operator instead of retried.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "template error: " + e.Reason
}

// Engine renders phase prompts. Rendering is deterministic: identical
// (template, vars) inputs produce byte-identical output, and nothing
// (clock, locale, globals) is consulted implicitly.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger falls back to slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Render substitutes {{VAR}} references and resolves {{#if VAR}}...{{/if}}
// conditional blocks. A referenced variable absent from vars renders as an
// empty string and is logged as a missing-variable warning; rendering never
// fails merely because an optional variable is unset.
//
// Conditionals are not nestable. A nested conditional, or an unbalanced
// {{#if}}/{{/if}} pair, returns *Error rather than corrupt output.
func (e *Engine) Render(tmpl string, vars Vars) (string, error) {
	result, err := resolveConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	// Anything that still looks like a conditional marker was unbalanced.
	if strings.Contains(result, "{{#if") || strings.Contains(result, "{{/if}}") {
		return "", &Error{Reason: "unbalanced conditional block"}
	}

	result = varPattern.ReplaceAllStringFunc(result, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := vars.Get(name); ok {
			return value
		}
		if vars.Flag(name) {
			return "true"
		}
		if !vars.Has(name) {
			e.logger.Warn("template references missing variable", "name", name)
		}
		return ""
	})

	return result, nil
}

// resolveConditionals keeps or drops {{#if VAR}} blocks based on vars.
// A block is kept when the variable is a true flag or a non-empty value.
func resolveConditionals(tmpl string, vars Vars) (string, error) {
	var nested *Error

	result := condPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := condPattern.FindStringSubmatch(match)
		if len(sub) < 3 {
			return ""
		}

		name := sub[1]
		body := sub[2]

		if strings.Contains(body, "{{#if") {
			nested = &Error{Reason: fmt.Sprintf("nested conditional inside {{#if %s}}", name)}
			return ""
		}

		if vars.truthy(name) {
			return body
		}
		return ""
	})

	if nested != nil {
		return "", nested
	}
	return result, nil
}
