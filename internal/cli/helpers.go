package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/task"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// setup loads the layered config and opens the project store.
func setup() (*config.Config, string, *store.Store, error) {
	root, err := config.FindProjectRoot()
	if err != nil {
		return nil, "", nil, fmt.Errorf("not a drover project (run 'drover init'): %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", nil, err
	}

	s, err := store.Open(cfg.DatabasePath(root))
	if err != nil {
		return nil, "", nil, err
	}
	return cfg, root, s, nil
}

// colorStatus renders a task status with the usual traffic colors.
func colorStatus(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return green(string(s))
	case task.StatusRunning:
		return cyan(string(s))
	case task.StatusBlocked, task.StatusPaused:
		return yellow(string(s))
	case task.StatusFailed:
		return red(string(s))
	default:
		return faint(string(s))
	}
}
