package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/assemble"
	"github.com/droverdev/drover/internal/automation"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/events"
	"github.com/droverdev/drover/internal/executor"
	"github.com/droverdev/drover/internal/orchestrator"
	"github.com/droverdev/drover/internal/retry"
	"github.com/droverdev/drover/internal/store"
	"github.com/droverdev/drover/internal/template"
	"github.com/droverdev/drover/internal/vcs"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task-id>...",
		Short: "Execute one or more tasks",
		Long: `Execute tasks through their phase plans. Each completed phase
creates a git checkpoint. Ctrl-C pauses in-flight tasks at their
next phase boundary; agent work already underway is persisted first.

Example:
  drover run TASK-001
  drover run TASK-001 TASK-002 TASK-003`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()

			lock, err := orchestrator.AcquireProjectLock(root)
			if err != nil {
				return err
			}
			defer lock.Release()

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pub := events.NewMemoryPublisher()
			defer pub.Close()
			go streamEvents(pub.Subscribe(events.GlobalTaskID))

			runner := buildRunner(cfg, root, s, pub)
			if err := runner.RunAll(ctx, args); err != nil {
				if ctx.Err() != nil {
					fmt.Println(yellow("interrupted, tasks paused"))
					return nil
				}
				return err
			}

			for _, id := range args {
				ts, err := s.GetTaskStatus(context.Background(), id)
				if err != nil {
					continue
				}
				fmt.Printf("%s %s\n", cyan(id), ts.Status)
			}
			return nil
		},
	}
}

// streamEvents prints phase progress as it happens.
func streamEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Type {
		case events.TypePhase:
			if d, ok := ev.Data.(events.PhaseUpdate); ok {
				fmt.Printf("%s %s %s\n", faint(ev.TaskID), d.Phase, d.Status)
			}
		case events.TypeWarning:
			if d, ok := ev.Data.(events.WarningData); ok {
				fmt.Printf("%s %s %s\n", faint(ev.TaskID), d.Phase, yellow(d.Warning))
			}
		case events.TypeError:
			if d, ok := ev.Data.(events.ErrorData); ok {
				fmt.Printf("%s %s %s\n", faint(ev.TaskID), d.Phase, red(d.Message))
			}
		case events.TypeComplete:
			fmt.Printf("%s %s\n", faint(ev.TaskID), green("completed"))
		}
	}
}

// buildRunner wires the execution stack for this project.
func buildRunner(cfg *config.Config, root string, s *store.Store, pub events.Publisher) *orchestrator.Runner {
	provider := automation.NewProvider(s, cfg.Automation, nil)
	assembler := assemble.New(provider, nil)
	engine := template.NewEngine(nil)
	invoker := agent.NewCommandInvoker(cfg.Agent.Bin, agent.WithWorkdir(root))
	exec := executor.New(assembler, engine, invoker, cfg.Agent, nil)
	coordinator := retry.New(cfg.Execution.MaxIterations, cfg.Execution.NoSignalBudget, nil)
	git := vcs.NewGit(root, nil)

	orch := orchestrator.New(s, exec, coordinator, git, pub, cfg)
	return orchestrator.NewRunner(orch, s, cfg.Execution.MaxConcurrent, nil)
}
