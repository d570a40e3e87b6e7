// Package automation builds supplementary context for fully unattended
// tasks: recently completed work and the files it touched. The assembler
// injects this for every automation task, on every phase and every retry.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/task"
)

// Source is the persistence surface the provider reads from.
type Source interface {
	RecentCompletedTasks(ctx context.Context, limit int) ([]*task.Task, error)
	ChangedFilesForTask(ctx context.Context, taskID string) ([]string, error)
}

// Context is the assembled automation context for one task execution.
type Context struct {
	// RecentTasks describes recently completed tasks, newest first.
	RecentTasks string
	// ChangedFiles lists files those tasks touched, glob-filtered.
	ChangedFiles string
}

// Provider assembles automation context from the store.
type Provider struct {
	source Source
	cfg    config.AutomationConfig
	logger *slog.Logger
}

// NewProvider creates a provider reading from the given source.
func NewProvider(source Source, cfg config.AutomationConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{source: source, cfg: cfg, logger: logger}
}

// Build assembles automation context for a task. The requesting task is
// excluded from its own context. Build degrades instead of failing: a
// store error yields empty sections with a warning, never an aborted
// phase.
func (p *Provider) Build(ctx context.Context, forTaskID string) *Context {
	out := &Context{}

	recent, err := p.source.RecentCompletedTasks(ctx, p.cfg.RecentTaskLimit)
	if err != nil {
		p.logger.Warn("automation context: recent tasks unavailable",
			"task_id", forTaskID, "error", err)
		return out
	}

	var lines []string
	var fileTasks []*task.Task
	for _, t := range recent {
		if t.ID == forTaskID {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", t.ID, t.Title, t.Weight))
		if len(fileTasks) < p.cfg.ChangedFileLimit {
			fileTasks = append(fileTasks, t)
		}
	}
	out.RecentTasks = strings.Join(lines, "\n")

	seen := make(map[string]bool)
	var files []string
	for _, t := range fileTasks {
		paths, err := p.source.ChangedFilesForTask(ctx, t.ID)
		if err != nil {
			p.logger.Warn("automation context: changed files unavailable",
				"task_id", t.ID, "error", err)
			continue
		}
		for _, path := range paths {
			if seen[path] || !p.includes(path) {
				continue
			}
			seen[path] = true
			files = append(files, fmt.Sprintf("- %s (%s)", path, t.ID))
		}
	}
	out.ChangedFiles = strings.Join(files, "\n")

	return out
}

// includes applies the configured include/exclude globs to a path.
// Exclude wins over include; an empty include list admits everything.
func (p *Provider) includes(path string) bool {
	for _, g := range p.cfg.ExcludeGlobs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return false
		}
	}
	if len(p.cfg.IncludeGlobs) == 0 {
		return true
	}
	for _, g := range p.cfg.IncludeGlobs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}
