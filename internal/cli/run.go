package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/daemon"
	"github.com/rasen-dev/rasen/internal/display"
	"github.com/rasen-dev/rasen/internal/memory"
	"github.com/rasen-dev/rasen/internal/orchestrator"
	"github.com/rasen-dev/rasen/internal/prompts"
	"github.com/rasen-dev/rasen/internal/qa"
	"github.com/rasen-dev/rasen/internal/review"
	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/store"
	"github.com/rasen-dev/rasen/internal/types"
	"github.com/rasen-dev/rasen/internal/vcs"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	runBackground bool
	runSkipReview bool
	runSkipQA     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Loop Driver until it terminates",
	Long: `Run the Loop Driver against the current .rasen workspace.

  rasen run                 run in the foreground until termination
  rasen run --background    detach, write rasen.pid, and return immediately
  rasen run --skip-review   disable the Review Sub-loop for this run
  rasen run --skip-qa       disable the QA Sub-loop for this run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runBackground {
			return spawnBackground()
		}
		return runForeground(orchestrator.RunFlags{SkipReview: runSkipReview, SkipQA: runSkipQA})
	},
}

func init() {
	runCmd.Flags().BoolVar(&runBackground, "background", false, "detach and run the loop as a background process")
	runCmd.Flags().BoolVar(&runSkipReview, "skip-review", false, "disable the Review Sub-loop")
	runCmd.Flags().BoolVar(&runSkipQA, "skip-qa", false, "disable the QA Sub-loop")
	rootCmd.AddCommand(runCmd)
}

func runForeground(flags orchestrator.RunFlags) error {
	workDir, err := workspace.Find()
	if err != nil {
		return err
	}
	stateDir := workspace.Path(workDir)
	cfg, err := config.Load(stateDir)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	task, err := os.ReadFile(workspace.TaskPath(stateDir))
	if err != nil {
		return fmt.Errorf("cannot read task.txt: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	disp := display.NewWithOptions(noColor)

	shutdown, stop := daemon.ShutdownSignal()
	defer stop()

	d, err := buildDriver(stateDir, workDir, string(task), cfg, logger, shutdown)
	if err != nil {
		return err
	}

	disp.RunHeader(d.TaskName)
	result, err := d.Run(context.Background(), flags)
	if err != nil {
		return err
	}

	if result.Reason == types.ReasonComplete {
		disp.RunComplete(result.Reason.String(), result.SubtasksCompleted)
	} else {
		disp.RunFailed(result.Reason.String(), nil, result.SubtasksCompleted)
	}
	return nil
}

func spawnBackground() error {
	workDir, err := workspace.Find()
	if err != nil {
		return err
	}
	stateDir := workspace.Path(workDir)
	cfg, err := config.Load(stateDir)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	pidFile := filepath.Join(stateDir, cfg.Background.PIDFile)
	logFile := filepath.Join(stateDir, cfg.Background.LogFile)
	mgr := daemon.New(pidFile, logFile)

	if err := mgr.EnsureNotRunning(); err != nil {
		return err
	}

	args := []string{"run"}
	if runSkipReview {
		args = append(args, "--skip-review")
	}
	if runSkipQA {
		args = append(args, "--skip-qa")
	}

	pid, err := mgr.Spawn(args)
	if err != nil {
		return err
	}

	disp := display.New()
	disp.Success(fmt.Sprintf("Backgrounded (pid %d); logging to %s", pid, logFile))
	fmt.Println("Check progress with 'rasen status' or 'rasen logs'.")
	return nil
}

// buildDriver wires the full dependency graph a `run`/`resume` invocation
// needs: stores rooted at stateDir, a real assistant and VCS gateway rooted
// at workDir, and the Review/QA sub-loop runners.
func buildDriver(stateDir, workDir, task string, cfg *config.Config, logger *slog.Logger, shutdown <-chan struct{}) (*orchestrator.Driver, error) {
	planStore := store.NewPlanStore(filepath.Join(stateDir, "implementation_plan.json"))
	recoveryStore := store.NewRecoveryStore(stateDir)
	statusStore := store.NewStatusStore(filepath.Join(stateDir, cfg.Background.StatusFile))
	memStore := memory.New(filepath.Join(stateDir, cfg.Memory.Path))

	assistant := session.NewClaudeAssistant(cfg.Claude.Binary, cfg.Claude.Model, cfg.Claude.AllowedTools)
	renderer := prompts.NewRenderer(stateDir)
	sessions := session.NewRunner(assistant, renderer, stateDir, workDir, logger)

	vcsGateway := vcs.New(workDir)

	reviewRunner := review.NewRunner(sessions, vcsGateway, logger)
	qaRunner := qa.NewRunner(sessions, workDir, logger)
	qaRunner.VCS = vcsGateway

	return orchestrator.NewDriver(task, planStore, recoveryStore, statusStore, memStore, sessions, vcsGateway,
		reviewRunner, qaRunner, cfg, logger, shutdown), nil
}
