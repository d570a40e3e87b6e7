package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnvVars overlays DROVER_* environment variables onto cfg.
// Unparseable values are ignored; the prior value stands.
func ApplyEnvVars(cfg *Config) {
	if v := os.Getenv("DROVER_AGENT_BIN"); v != "" {
		cfg.Agent.Bin = v
	}
	if v := os.Getenv("DROVER_AGENT_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("DROVER_AGENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.Timeout = d
		}
	}
	if v := os.Getenv("DROVER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.MaxConcurrent = n
		}
	}
	if v := os.Getenv("DROVER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Execution.MaxIterations = n
		}
	}
	if v := os.Getenv("DROVER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DROVER_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
}
