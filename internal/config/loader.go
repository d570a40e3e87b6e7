package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with layered overrides. Load order (later
// sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.drover/config.yaml) - optional
//  3. Project config (.drover/config.yaml) - optional
//  4. Environment variables (DROVER_*)
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, DroverDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	projectPath := filepath.Join(projectRoot, DroverDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		// Project config errors are fatal: a broken project config should
		// not silently fall back to defaults.
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	ApplyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeFromFile overlays configuration from a YAML file onto cfg.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}
