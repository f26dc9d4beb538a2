package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/daemon"
	"github.com/rasen-dev/rasen/internal/display"
	"github.com/rasen-dev/rasen/internal/store"
	"github.com/rasen-dev/rasen/internal/types"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current plan, subtask, and termination state",
	Long: `Show the Status Store's live snapshot: which subtask is active,
how many have completed, whether a background run is alive, and (with
--verbose) the full subtask list with per-subtask attempt counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := workspace.Find()
		if err != nil {
			fmt.Println("No rasen workspace found.")
			fmt.Println("Run 'rasen init --task \"...\"' to create one.")
			return nil
		}
		stateDir := workspace.Path(workDir)
		cfg, err := config.Load(stateDir)
		if err != nil {
			return fmt.Errorf("cannot load config: %w", err)
		}

		ctx := context.Background()
		disp := display.NewWithOptions(noColor)
		theme := disp.Theme()

		statusStore := store.NewStatusStore(filepath.Join(stateDir, cfg.Background.StatusFile))
		snap, err := statusStore.Load(ctx)
		if err != nil {
			return fmt.Errorf("cannot load status: %w", err)
		}

		task, _ := os.ReadFile(workspace.TaskPath(stateDir))
		fmt.Printf("%s\n", theme.Bold(string(task)))

		mgr := daemon.New(filepath.Join(stateDir, cfg.Background.PIDFile), filepath.Join(stateDir, cfg.Background.LogFile))
		if pid, err := mgr.ReadPID(); err == nil {
			if daemon.IsProcessRunning(pid) {
				fmt.Printf("Background run: %s (pid %d)\n\n", theme.Success("active"), pid)
			} else {
				fmt.Printf("Background run: %s (stale pid %d)\n\n", theme.Warning("stopped"), pid)
			}
		} else {
			fmt.Println("Background run: none")
			fmt.Println()
		}

		if snap == nil {
			fmt.Println("No run has produced a status snapshot yet. Run 'rasen run'.")
			return nil
		}

		printSnapshot(disp, snap)

		planStore := store.NewPlanStore(filepath.Join(stateDir, "implementation_plan.json"))
		plan, err := planStore.Load(ctx)
		if err == nil && statusVerbose {
			printSubtasks(theme, plan)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "show the full subtask list")
	rootCmd.AddCommand(statusCmd)
}

func printSnapshot(disp *display.Display, snap *types.StatusSnapshot) {
	theme := disp.Theme()
	if snap.TotalSubtasks > 0 {
		bar := display.CreateProgressBar(snap.CompletedSubtasks, snap.TotalSubtasks, 20)
		pct := snap.CompletedSubtasks * 100 / snap.TotalSubtasks
		fmt.Printf("Progress: [%s] %d%% (%d/%d subtasks)\n\n", bar, pct, snap.CompletedSubtasks, snap.TotalSubtasks)
	}

	fmt.Printf("  Iteration:  %d\n", snap.Iteration)
	if snap.SubtaskID != "" {
		fmt.Printf("  Subtask:    %s %s\n", snap.SubtaskID, snap.SubtaskDescription)
	}
	fmt.Printf("  Status:     %s\n", snap.OverallStatus)
	if snap.ConsecutiveFailures > 0 {
		fmt.Printf("  Failures:   %s\n", theme.Warning(fmt.Sprintf("%d consecutive", snap.ConsecutiveFailures)))
	}
	if snap.TerminationReason != "" {
		fmt.Printf("  Terminated: %s\n", theme.Info(snap.TerminationReason))
	}
	fmt.Println()
}

func printSubtasks(theme *display.Theme, plan *types.Plan) {
	if plan == nil {
		return
	}
	fmt.Println(theme.Bold("Subtasks:"))
	for _, s := range plan.Subtasks {
		var icon string
		switch s.Status {
		case types.StatusCompleted:
			icon = theme.Success(display.SymbolSuccess)
		case types.StatusFailed:
			icon = theme.Error(display.SymbolError)
		case types.StatusInProgress:
			icon = theme.Warning(display.SymbolPartial)
		default:
			icon = display.SymbolPending
		}
		attempts := ""
		if s.Attempts > 0 {
			attempts = fmt.Sprintf(" (%d attempts)", s.Attempts)
		}
		fmt.Printf("  %s %s %s%s\n", icon, s.ID, s.Description, attempts)
	}
}
