package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/store"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize drover in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			dir := filepath.Join(cwd, ".drover")
			if _, err := os.Stat(dir); err == nil {
				return fmt.Errorf("already initialized: %s exists", dir)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}

			cfg := config.Default()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal default config: %w", err)
			}
			cfgPath := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", cfgPath, err)
			}

			s, err := store.Open(cfg.DatabasePath(cwd))
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Printf("%s initialized drover in %s\n", green("✓"), dir)
			return nil
		},
	}
}
