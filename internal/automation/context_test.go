package automation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/task"
)

type fakeSource struct {
	tasks []*task.Task
	files map[string][]string
	err   error
}

func (f *fakeSource) RecentCompletedTasks(_ context.Context, limit int) ([]*task.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.tasks) {
		return f.tasks[:limit], nil
	}
	return f.tasks, nil
}

func (f *fakeSource) ChangedFilesForTask(_ context.Context, taskID string) ([]string, error) {
	return f.files[taskID], nil
}

func completedTask(id, title string) *task.Task {
	t := task.New(id, title, task.WeightSmall)
	t.Status = task.StatusCompleted
	now := time.Now()
	t.CompletedAt = &now
	return t
}

func testConfig() config.AutomationConfig {
	return config.AutomationConfig{RecentTaskLimit: 20, ChangedFileLimit: 10}
}

func TestBuild_RecentTasksAndFiles(t *testing.T) {
	src := &fakeSource{
		tasks: []*task.Task{
			completedTask("TASK-002", "Add retry logic"),
			completedTask("TASK-001", "Initial setup"),
		},
		files: map[string][]string{
			"TASK-002": {"internal/retry/retry.go"},
			"TASK-001": {"go.mod", "main.go"},
		},
	}
	p := NewProvider(src, testConfig(), nil)

	got := p.Build(context.Background(), "TASK-003")
	if !strings.Contains(got.RecentTasks, "TASK-002: Add retry logic") {
		t.Errorf("recent tasks missing entry:\n%s", got.RecentTasks)
	}
	if !strings.Contains(got.ChangedFiles, "internal/retry/retry.go (TASK-002)") {
		t.Errorf("changed files missing entry:\n%s", got.ChangedFiles)
	}
	if !strings.Contains(got.ChangedFiles, "go.mod (TASK-001)") {
		t.Errorf("changed files missing entry:\n%s", got.ChangedFiles)
	}
}

func TestBuild_ExcludesSelf(t *testing.T) {
	src := &fakeSource{
		tasks: []*task.Task{completedTask("TASK-001", "Self")},
	}
	p := NewProvider(src, testConfig(), nil)

	got := p.Build(context.Background(), "TASK-001")
	if got.RecentTasks != "" {
		t.Errorf("task included itself: %q", got.RecentTasks)
	}
}

func TestBuild_GlobFilters(t *testing.T) {
	src := &fakeSource{
		tasks: []*task.Task{completedTask("TASK-001", "Mixed files")},
		files: map[string][]string{
			"TASK-001": {"internal/a/a.go", "internal/a/a_test.go", "docs/readme.md"},
		},
	}
	cfg := testConfig()
	cfg.IncludeGlobs = []string{"internal/**/*.go"}
	cfg.ExcludeGlobs = []string{"**/*_test.go"}
	p := NewProvider(src, cfg, nil)

	got := p.Build(context.Background(), "TASK-002")
	if !strings.Contains(got.ChangedFiles, "internal/a/a.go") {
		t.Errorf("included file missing:\n%s", got.ChangedFiles)
	}
	if strings.Contains(got.ChangedFiles, "a_test.go") {
		t.Errorf("excluded file present:\n%s", got.ChangedFiles)
	}
	if strings.Contains(got.ChangedFiles, "readme.md") {
		t.Errorf("non-included file present:\n%s", got.ChangedFiles)
	}
}

// Build must degrade to empty context on store failure, never abort.
func TestBuild_SourceErrorDegrades(t *testing.T) {
	src := &fakeSource{err: errors.New("db closed")}
	p := NewProvider(src, testConfig(), nil)

	got := p.Build(context.Background(), "TASK-001")
	if got.RecentTasks != "" || got.ChangedFiles != "" {
		t.Errorf("expected empty context, got %+v", got)
	}
}
