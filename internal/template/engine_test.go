package template

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_Substitution(t *testing.T) {
	e := NewEngine(nil)
	vars := NewVars().
		With("TASK_ID", "TASK-001").
		With("TASK_TITLE", "Add retry logic")

	out, err := e.Render("Task {{TASK_ID}}: {{TASK_TITLE}}", vars)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Task TASK-001: Add retry logic" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_Deterministic(t *testing.T) {
	e := NewEngine(nil)
	vars := NewVars().With("A", "1").With("B", "2").WithFlag("F", true)
	tmpl := "{{#if F}}{{A}}{{/if}}-{{B}}-{{MISSING}}"

	first, err := e.Render(tmpl, vars)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Render(tmpl, vars)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if again != first {
			t.Fatalf("render %d = %q, first = %q", i, again, first)
		}
	}
}

func TestRender_MissingVariableIsEmpty(t *testing.T) {
	e := NewEngine(nil)

	out, err := e.Render("before {{UNSET}} after", NewVars())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "before  after" {
		t.Errorf("Render() = %q, want missing variable replaced by empty string", out)
	}
}

func TestRender_ConditionalKeptAndDropped(t *testing.T) {
	e := NewEngine(nil)
	tmpl := "{{#if IS_RETRY}}retry section{{/if}}body"

	out, err := e.Render(tmpl, NewVars().WithFlag("IS_RETRY", true))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "retry section") {
		t.Errorf("true flag should keep block, got %q", out)
	}

	out, err = e.Render(tmpl, NewVars().WithFlag("IS_RETRY", false))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "retry section") {
		t.Errorf("false flag should drop block, got %q", out)
	}

	// An absent name behaves like a false flag.
	out, err = e.Render(tmpl, NewVars())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "body" {
		t.Errorf("absent flag should drop block, got %q", out)
	}
}

func TestRender_ConditionalOnNonEmptyValue(t *testing.T) {
	e := NewEngine(nil)
	tmpl := "{{#if PREVIOUS_OUTPUT}}prior: {{PREVIOUS_OUTPUT}}{{/if}}"

	out, err := e.Render(tmpl, NewVars().With("PREVIOUS_OUTPUT", "design notes"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "prior: design notes" {
		t.Errorf("Render() = %q", out)
	}

	out, err = e.Render(tmpl, NewVars().With("PREVIOUS_OUTPUT", ""))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "" {
		t.Errorf("empty value should drop block, got %q", out)
	}
}

func TestRender_NestedConditionalFails(t *testing.T) {
	e := NewEngine(nil)
	tmpl := "{{#if A}}outer {{#if B}}inner{{/if}}{{/if}}"

	_, err := e.Render(tmpl, NewVars().WithFlag("A", true).WithFlag("B", true))
	if err == nil {
		t.Fatal("nested conditional should fail")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
}

func TestRender_UnbalancedConditionalFails(t *testing.T) {
	e := NewEngine(nil)

	for _, tmpl := range []string{
		"{{#if A}}no close",
		"no open{{/if}}",
	} {
		if _, err := e.Render(tmpl, NewVars().WithFlag("A", true)); err == nil {
			t.Errorf("Render(%q) should fail", tmpl)
		}
	}
}

func TestRender_MultilineConditionalBody(t *testing.T) {
	e := NewEngine(nil)
	tmpl := "{{#if CTX}}line one\nline two\n{{/if}}tail"

	out, err := e.Render(tmpl, NewVars().With("CTX", "x"))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "line one\nline two\ntail" {
		t.Errorf("Render() = %q", out)
	}
}

func TestVars_Immutable(t *testing.T) {
	base := NewVars().With("A", "1")
	derived := base.With("A", "2").WithFlag("F", true)

	if v, _ := base.Get("A"); v != "1" {
		t.Errorf("base mutated: A = %q", v)
	}
	if base.Flag("F") {
		t.Error("base mutated: flag F set")
	}
	if v, _ := derived.Get("A"); v != "2" {
		t.Errorf("derived A = %q", v)
	}
}
