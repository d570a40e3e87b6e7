// Package config provides layered configuration for drover.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DroverDir is the project-local drover directory.
	DroverDir = ".drover"
	// ConfigFileName is the config file name.
	ConfigFileName = "config.yaml"
	// DBFileName is the project database file name.
	DBFileName = "drover.db"
)

// AgentConfig configures agent invocation.
type AgentConfig struct {
	// Bin is the agent binary to execute.
	Bin string `yaml:"bin"`
	// Model is the default model; phases may override it.
	Model string `yaml:"model,omitempty"`
	// Timeout bounds a single invocation.
	Timeout time.Duration `yaml:"timeout"`
	// TransportRetries is the number of immediate re-invocations after a
	// transport failure, inside the executor.
	TransportRetries int `yaml:"transport_retries"`
}

// ExecutionConfig configures the orchestration loop.
type ExecutionConfig struct {
	// MaxConcurrent caps concurrently running tasks.
	MaxConcurrent int `yaml:"max_concurrent"`
	// MaxIterations is the global per-phase retry budget; plans and
	// phases may override it.
	MaxIterations int `yaml:"max_iterations"`
	// NoSignalBudget bounds consecutive attempts that produce no
	// completion marker at all. Always smaller than MaxIterations.
	NoSignalBudget int `yaml:"no_signal_budget"`
	// VerificationPhases lists phase IDs that still run when a task
	// enters verification-only mode. Empty means "all non-generative".
	VerificationPhases []string `yaml:"verification_phases,omitempty"`
}

// AutomationConfig configures automation context assembly.
type AutomationConfig struct {
	// RecentTaskLimit caps the recently-completed-task list.
	RecentTaskLimit int `yaml:"recent_task_limit"`
	// ChangedFileLimit caps how many recent tasks contribute files.
	ChangedFileLimit int `yaml:"changed_file_limit"`
	// IncludeGlobs filters changed files in ({} means all).
	IncludeGlobs []string `yaml:"include_globs,omitempty"`
	// ExcludeGlobs filters changed files out.
	ExcludeGlobs []string `yaml:"exclude_globs,omitempty"`
}

// APIConfig configures the read-only dashboard API.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the root drover configuration.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Automation AutomationConfig `yaml:"automation"`
	API        APIConfig        `yaml:"api"`
	// DBPath overrides the default project database location.
	DBPath string `yaml:"db_path,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Bin:              "claude",
			Timeout:          10 * time.Minute,
			TransportRetries: 2,
		},
		Execution: ExecutionConfig{
			MaxConcurrent:  4,
			MaxIterations:  5,
			NoSignalBudget: 2,
		},
		Automation: AutomationConfig{
			RecentTaskLimit:  20,
			ChangedFileLimit: 10,
		},
		API: APIConfig{
			Listen: "127.0.0.1:7450",
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Execution.MaxConcurrent < 1 {
		return fmt.Errorf("execution.max_concurrent must be at least 1")
	}
	if c.Execution.MaxIterations < 1 {
		return fmt.Errorf("execution.max_iterations must be at least 1")
	}
	if c.Execution.NoSignalBudget < 1 {
		return fmt.Errorf("execution.no_signal_budget must be at least 1")
	}
	if c.Execution.NoSignalBudget > c.Execution.MaxIterations {
		return fmt.Errorf("execution.no_signal_budget must not exceed execution.max_iterations")
	}
	if c.Agent.Bin == "" {
		return fmt.Errorf("agent.bin is required")
	}
	if c.Agent.TransportRetries < 0 {
		return fmt.Errorf("agent.transport_retries must not be negative")
	}
	return nil
}

// DatabasePath returns the resolved project database path.
func (c *Config) DatabasePath(projectRoot string) string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(projectRoot, DroverDir, DBFileName)
}

// FindProjectRoot walks up from the working directory until a .drover
// directory is found.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, DroverDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a drover project (no %s directory found)", DroverDir)
		}
		dir = parent
	}
}
