// Package assemble builds the template variables for a phase execution.
// It is the single place TemplateVars are produced: every prompt the
// engine renders goes through Build, so context that must always be
// present (automation context, retry context, prior-phase output) cannot
// be present on one execution path and absent on another.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/droverdev/drover/internal/automation"
	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
	"github.com/droverdev/drover/internal/task"
	"github.com/droverdev/drover/internal/template"
)

// Variable names consumed by the builtin phase prompts.
const (
	VarTaskID          = "TASK_ID"
	VarTaskTitle       = "TASK_TITLE"
	VarTaskDescription = "TASK_DESCRIPTION"
	VarTaskWeight      = "TASK_WEIGHT"
	VarTaskCategory    = "TASK_CATEGORY"
	VarPhaseID         = "PHASE_ID"
	VarPhaseName       = "PHASE_NAME"
	VarIteration       = "ITERATION"
	VarPreviousOutput  = "PREVIOUS_OUTPUT"
	VarVerifyResults   = "VERIFICATION_RESULTS"
	VarRetryContext    = "RETRY_CONTEXT"
	VarRecentTasks     = "AUTOMATION_RECENT_TASKS"
	VarChangedFiles    = "AUTOMATION_CHANGED_FILES"

	FlagRetry            = "IS_RETRY"
	FlagAutomation       = "IS_AUTOMATION"
	FlagVerificationOnly = "VERIFICATION_ONLY"
)

// excerptLimit bounds the prior-output excerpt folded into retry context.
const excerptLimit = 1500

// Assembler builds TemplateVars for phase executions.
type Assembler struct {
	automation *automation.Provider
	logger     *slog.Logger
}

// New creates an assembler. The automation provider may be nil when no
// store is available (dry runs); automation tasks then get empty
// automation sections but keep the keys.
func New(provider *automation.Provider, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{automation: provider, logger: logger}
}

// Build assembles the variables for one attempt of a phase. The rules
// are unconditional: task metadata always, prior-phase output always
// (raw trimmed text when it has no structured sections), automation
// context always for automation tasks, retry context whenever iteration
// is past the first.
func (a *Assembler) Build(ctx context.Context, t *task.Task, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec) (template.Vars, error) {
	if t == nil || st == nil || pl == nil || phase == nil {
		return template.Vars{}, fmt.Errorf("assemble context: nil input")
	}

	vars := template.NewVars().
		With(VarTaskID, t.ID).
		With(VarTaskTitle, t.Title).
		With(VarTaskDescription, t.Description).
		With(VarTaskWeight, string(t.Weight)).
		With(VarTaskCategory, string(t.Category)).
		With(VarPhaseID, phase.ID).
		With(VarPhaseName, phase.Name).
		With(VarIteration, fmt.Sprintf("%d", st.Iteration)).
		WithFlag(FlagVerificationOnly, st.Mode == state.ModeVerificationOnly)

	vars = a.withPreviousOutput(vars, st, pl, phase)
	vars = a.withAutomationContext(ctx, vars, t)
	vars = withRetryContext(vars, st)

	return vars, nil
}

// withPreviousOutput injects the immediately preceding phase's output.
// Structured sections are extracted when present; otherwise the raw
// trimmed text is carried verbatim. Content is never silently dropped.
func (a *Assembler) withPreviousOutput(vars template.Vars, st *state.State, pl *plan.Plan, phase *plan.PhaseSpec) template.Vars {
	idx := pl.IndexOf(phase.ID)
	if idx <= 0 {
		return vars.With(VarPreviousOutput, "")
	}
	prev := pl.Phase(idx - 1)
	raw := st.PhaseOutput(prev.ID)

	content := extractStructuredContent(raw)
	if content == "" {
		content = strings.TrimSpace(raw)
		if raw != "" && content == "" {
			a.logger.Warn("previous phase output was only whitespace",
				"phase", prev.ID)
		}
	}
	vars = vars.With(VarPreviousOutput, content)

	if results := extractVerificationResults(raw); results != "" {
		vars = vars.With(VarVerifyResults, results)
	}
	return vars
}

// withAutomationContext merges automation context for automation tasks.
// The keys are always set for automation tasks, even when the provider
// is unavailable, so the property "automation vars present" holds on
// every phase and every retry.
func (a *Assembler) withAutomationContext(ctx context.Context, vars template.Vars, t *task.Task) template.Vars {
	vars = vars.WithFlag(FlagAutomation, t.IsAutomation)
	if !t.IsAutomation {
		return vars
	}

	recent, changed := "", ""
	if a.automation != nil {
		ac := a.automation.Build(ctx, t.ID)
		recent, changed = ac.RecentTasks, ac.ChangedFiles
	}
	return vars.
		With(VarRecentTasks, recent).
		With(VarChangedFiles, changed)
}

// withRetryContext folds the prior attempt's failure into the vars when
// this is a retry. Markdown-significant characters in the reason and
// excerpt are escaped so a reason containing code fragments cannot
// corrupt the rendered prompt structure.
func withRetryContext(vars template.Vars, st *state.State) template.Vars {
	if st.Iteration <= 1 || st.Retry == nil {
		return vars.WithFlag(FlagRetry, false)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous attempt %d failed.\n", st.Retry.Attempt)
	fmt.Fprintf(&b, "Reason: %s\n", escapeMarkdown(st.Retry.Reason))
	if st.Retry.OutputExcerpt != "" {
		fmt.Fprintf(&b, "Output excerpt:\n%s\n", escapeMarkdown(excerpt(st.Retry.OutputExcerpt)))
	}

	return vars.
		WithFlag(FlagRetry, true).
		With(VarRetryContext, b.String())
}

var sectionPattern = regexp.MustCompile(`(?ms)^## (?:Summary|Output)\s*\n(.*?)(?:^## |\z)`)

// extractStructuredContent pulls the Summary/Output section out of a
// phase artifact. Empty result means the artifact had no such section
// and the caller should fall back to the raw text.
func extractStructuredContent(output string) string {
	m := sectionPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var verifyPattern = regexp.MustCompile(`(?ms)^## Verification Results\s*\n(.*?)(?:^## |\z)`)

// extractVerificationResults pulls the verification-results table from
// an implement-phase artifact, empty if absent.
func extractVerificationResults(output string) string {
	m := verifyPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var markdownEscaper = strings.NewReplacer(
	"`", "\\`",
	"|", "\\|",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "\n[truncated]"
}
