// Package errors provides structured error types for drover.
package errors

import (
	"encoding/json"
	"errors"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for drover.
const (
	// Initialization errors
	CodeNotInitialized     Code = "DROVER_NOT_INITIALIZED"
	CodeAlreadyInitialized Code = "DROVER_ALREADY_INITIALIZED"

	// Task errors
	CodeTaskNotFound     Code = "TASK_NOT_FOUND"
	CodeTaskInvalidState Code = "TASK_INVALID_STATE"
	CodeTaskRunning      Code = "TASK_RUNNING"

	// Agent errors
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
	CodeAgentTimeout     Code = "AGENT_TIMEOUT"
	CodePhaseStuck       Code = "PHASE_STUCK"
	CodeMaxIterations    Code = "MAX_ITERATIONS_EXCEEDED"

	// Template errors
	CodeTemplateInvalid Code = "TEMPLATE_INVALID"

	// Persistence errors
	CodeCommitFailed Code = "COMMIT_FAILED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeNotInitialized:     CategoryBadRequest,
	CodeAlreadyInitialized: CategoryConflict,
	CodeTaskNotFound:       CategoryNotFound,
	CodeTaskInvalidState:   CategoryBadRequest,
	CodeTaskRunning:        CategoryConflict,
	CodeAgentUnavailable:   CategoryUnavailable,
	CodeAgentTimeout:       CategoryTimeout,
	CodePhaseStuck:         CategoryInternal,
	CodeMaxIterations:      CategoryInternal,
	CodeTemplateInvalid:    CategoryBadRequest,
	CodeCommitFailed:       CategoryInternal,
	CodeConfigInvalid:      CategoryBadRequest,
	CodeConfigMissing:      CategoryBadRequest,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// DroverError is the structured error type for drover.
type DroverError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *DroverError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *DroverError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *DroverError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *DroverError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *DroverError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler, including the cause text.
func (e *DroverError) MarshalJSON() ([]byte, error) {
	type alias DroverError
	out := struct {
		*alias
		Cause string `json:"cause,omitempty"`
	}{alias: (*alias)(e)}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}

// New creates a DroverError with the given code and message.
func New(code Code, what string) *DroverError {
	return &DroverError{Code: code, What: what}
}

// Wrap creates a DroverError wrapping a cause.
func Wrap(code Code, what string, cause error) *DroverError {
	return &DroverError{Code: code, What: what, Cause: cause}
}

// WithWhy attaches an explanation.
func (e *DroverError) WithWhy(why string) *DroverError {
	e.Why = why
	return e
}

// WithFix attaches a suggested fix.
func (e *DroverError) WithFix(fix string) *DroverError {
	e.Fix = fix
	return e
}

// CodeOf extracts the error code from an error chain.
// Returns an empty code if no DroverError is found.
func CodeOf(err error) Code {
	var de *DroverError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Is reports whether the error chain contains a DroverError with the code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
