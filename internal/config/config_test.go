package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero concurrency", func(c *Config) { c.Execution.MaxConcurrent = 0 }, true},
		{"zero iterations", func(c *Config) { c.Execution.MaxIterations = 0 }, true},
		{"zero no-signal budget", func(c *Config) { c.Execution.NoSignalBudget = 0 }, true},
		{"no-signal exceeds iterations", func(c *Config) {
			c.Execution.MaxIterations = 2
			c.Execution.NoSignalBudget = 3
		}, true},
		{"missing agent bin", func(c *Config) { c.Agent.Bin = "" }, true},
		{"negative transport retries", func(c *Config) { c.Agent.TransportRetries = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ProjectOverridesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // isolate from any real user config
	root := t.TempDir()
	writeProjectConfig(t, root, `
agent:
  bin: other-agent
  timeout: 5m
execution:
  max_concurrent: 2
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Bin != "other-agent" {
		t.Errorf("Agent.Bin = %q", cfg.Agent.Bin)
	}
	if cfg.Agent.Timeout != 5*time.Minute {
		t.Errorf("Agent.Timeout = %v", cfg.Agent.Timeout)
	}
	if cfg.Execution.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d", cfg.Execution.MaxConcurrent)
	}
	// Untouched fields keep their defaults.
	if cfg.Execution.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want default 5", cfg.Execution.MaxIterations)
	}
}

func TestLoad_BrokenProjectConfigIsFatal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	writeProjectConfig(t, root, "agent: [not a mapping")

	if _, err := Load(root); err == nil {
		t.Fatal("Load() should fail on unparseable project config")
	}
}

func TestLoad_InvalidMergedConfigIsFatal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	writeProjectConfig(t, root, `
execution:
  max_concurrent: 0
`)

	if _, err := Load(root); err == nil {
		t.Fatal("Load() should fail validation")
	}
}

func TestApplyEnvVars(t *testing.T) {
	t.Setenv("DROVER_AGENT_BIN", "env-agent")
	t.Setenv("DROVER_MAX_ITERATIONS", "7")
	t.Setenv("DROVER_AGENT_TIMEOUT", "90s")
	t.Setenv("DROVER_API_LISTEN", "127.0.0.1:9999")

	cfg := Default()
	ApplyEnvVars(cfg)

	if cfg.Agent.Bin != "env-agent" {
		t.Errorf("Agent.Bin = %q", cfg.Agent.Bin)
	}
	if cfg.Execution.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d", cfg.Execution.MaxIterations)
	}
	if cfg.Agent.Timeout != 90*time.Second {
		t.Errorf("Agent.Timeout = %v", cfg.Agent.Timeout)
	}
	if cfg.API.Listen != "127.0.0.1:9999" {
		t.Errorf("API.Listen = %q", cfg.API.Listen)
	}
}

func TestApplyEnvVars_IgnoresUnparseable(t *testing.T) {
	t.Setenv("DROVER_MAX_CONCURRENT", "lots")
	t.Setenv("DROVER_AGENT_TIMEOUT", "soonish")

	cfg := Default()
	ApplyEnvVars(cfg)

	if cfg.Execution.MaxConcurrent != 4 {
		t.Errorf("MaxConcurrent = %d, want default kept", cfg.Execution.MaxConcurrent)
	}
	if cfg.Agent.Timeout != 10*time.Minute {
		t.Errorf("Agent.Timeout = %v, want default kept", cfg.Agent.Timeout)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	want := filepath.Join("/proj", DroverDir, DBFileName)
	if got := cfg.DatabasePath("/proj"); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}

	cfg.DBPath = "/elsewhere/tasks.db"
	if got := cfg.DatabasePath("/proj"); got != "/elsewhere/tasks.db" {
		t.Errorf("DatabasePath with override = %q", got)
	}
}

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, DroverDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
