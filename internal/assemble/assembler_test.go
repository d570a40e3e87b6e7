package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/droverdev/drover/internal/automation"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/plan"
	"github.com/droverdev/drover/internal/state"
	"github.com/droverdev/drover/internal/task"
)

type stubSource struct {
	tasks []*task.Task
	files map[string][]string
}

func (s *stubSource) RecentCompletedTasks(_ context.Context, _ int) ([]*task.Task, error) {
	return s.tasks, nil
}

func (s *stubSource) ChangedFilesForTask(_ context.Context, taskID string) ([]string, error) {
	return s.files[taskID], nil
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		Version: 1,
		TaskID:  "TASK-001",
		Weight:  task.WeightSmall,
		Phases: []plan.PhaseSpec{
			{ID: "implement", Name: "Implement", Generative: true},
			{ID: "test", Name: "Test"},
		},
	}
}

func testFixture() (*task.Task, *state.State, *plan.Plan) {
	t := task.New("TASK-001", "Add feature", task.WeightSmall)
	st := state.New("TASK-001")
	pl := testPlan()
	st.StartPhase(0, "implement")
	return t, st, pl
}

func TestBuild_TaskMetadata(t *testing.T) {
	tk, st, pl := testFixture()
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for name, want := range map[string]string{
		VarTaskID:    "TASK-001",
		VarTaskTitle: "Add feature",
		VarPhaseID:   "implement",
		VarIteration: "1",
	} {
		got, _ := vars.Get(name)
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestBuild_PreviousOutputStructured(t *testing.T) {
	tk, st, pl := testFixture()
	st.CompletePhase("implement", "abc", "# Artifact\n## Summary\nDid the work.\n## Details\nlots")
	st.StartPhase(1, "test")
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, _ := vars.Get(VarPreviousOutput)
	if got != "Did the work." {
		t.Errorf("previous output = %q", got)
	}
}

// Output with no structured sections must be carried as raw trimmed
// text, never dropped to empty.
func TestBuild_PreviousOutputRawFallback(t *testing.T) {
	tk, st, pl := testFixture()
	st.CompletePhase("implement", "abc", "  plain text, no markers  \n")
	st.StartPhase(1, "test")
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, _ := vars.Get(VarPreviousOutput)
	if got != "plain text, no markers" {
		t.Errorf("previous output = %q, want raw trimmed text", got)
	}
}

func TestBuild_VerificationResultsExtraction(t *testing.T) {
	tk, st, pl := testFixture()
	out := "## Summary\nok\n## Verification Results\n| check | pass |\n## Next\nx"
	st.CompletePhase("implement", "abc", out)
	st.StartPhase(1, "test")
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, _ := vars.Get(VarVerifyResults)
	if got != "| check | pass |" {
		t.Errorf("verification results = %q", got)
	}
}

// Automation context keys must be present for automation tasks on every
// phase and every iteration.
func TestBuild_AutomationContextAlwaysPresent(t *testing.T) {
	src := &stubSource{
		tasks: []*task.Task{func() *task.Task {
			t := task.New("TASK-000", "Earlier work", task.WeightSmall)
			t.Status = task.StatusCompleted
			return t
		}()},
		files: map[string][]string{"TASK-000": {"pkg/x.go"}},
	}
	provider := automation.NewProvider(src, config.Default().Automation, nil)
	a := New(provider, nil)

	tk, st, pl := testFixture()
	tk.IsAutomation = true

	for _, phase := range []*plan.PhaseSpec{pl.Phase(0), pl.Phase(1)} {
		for iter := 1; iter <= 3; iter++ {
			st.Iteration = iter
			vars, err := a.Build(context.Background(), tk, st, pl, phase)
			if err != nil {
				t.Fatalf("build phase %s iter %d: %v", phase.ID, iter, err)
			}
			if !vars.Flag(FlagAutomation) {
				t.Errorf("phase %s iter %d: automation flag unset", phase.ID, iter)
			}
			if !vars.Has(VarRecentTasks) || !vars.Has(VarChangedFiles) {
				t.Errorf("phase %s iter %d: automation keys missing", phase.ID, iter)
			}
		}
	}
}

func TestBuild_NonAutomationOmitsContext(t *testing.T) {
	tk, st, pl := testFixture()
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if vars.Flag(FlagAutomation) {
		t.Error("automation flag set for interactive task")
	}
	if vars.Has(VarRecentTasks) {
		t.Error("automation keys present for interactive task")
	}
}

func TestBuild_RetryContextEscapesMarkdown(t *testing.T) {
	tk, st, pl := testFixture()
	st.BeginAttempt("implement")
	st.SetRetry("tests fail: `go test` output | broken", "got `nil`", 1)
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !vars.Flag(FlagRetry) {
		t.Fatal("retry flag unset on iteration 2")
	}
	rc, _ := vars.Get(VarRetryContext)
	if !strings.Contains(rc, "\\`go test\\`") {
		t.Errorf("backticks not escaped: %q", rc)
	}
	if !strings.Contains(rc, "\\|") {
		t.Errorf("pipes not escaped: %q", rc)
	}
}

func TestBuild_FirstAttemptHasNoRetryContext(t *testing.T) {
	tk, st, pl := testFixture()
	a := New(nil, nil)

	vars, err := a.Build(context.Background(), tk, st, pl, pl.Phase(0))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if vars.Flag(FlagRetry) {
		t.Error("retry flag set on first attempt")
	}
	if vars.Has(VarRetryContext) {
		t.Error("retry context present on first attempt")
	}
}
