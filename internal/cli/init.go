package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/display"
	"github.com/rasen-dev/rasen/internal/utils"
	"github.com/rasen-dev/rasen/internal/vcs"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	initTask     string
	initForce    bool
	initWorktree bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new .rasen workspace",
	Long: `Create the .rasen state directory in the current project.

init writes task.txt (the one-line task description the Initializer
session expands into a plan) and config.yml (the starter configuration,
editable by hand before the first run).

  rasen init --task "Add pagination to the /users endpoint"

With --worktree, init also creates a task branch (rasen/<slugified task>)
and checks out a git worktree at worktree.base_path/<slug>, so the Coder
sessions run in an isolated working copy merged back later with
'rasen merge'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.TrimSpace(initTask)
		if task == "" {
			return fmt.Errorf("--task is required")
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		stateDir, err := workspace.Init(cwd, task, initForce)
		if err != nil {
			return err
		}

		cfg := config.DefaultConfig()
		disp := display.New()

		if initWorktree {
			branch := "rasen/" + utils.Slugify(task)
			worktreePath := filepath.Join(cwd, cfg.Worktree.BasePath, utils.Slugify(task))

			g := vcs.New(cwd)
			if err := g.CreateWorktree(context.Background(), worktreePath, branch); err != nil {
				return fmt.Errorf("workspace created but cannot create worktree: %w", err)
			}
			cfg.Worktree.Enabled = true
			disp.Success(fmt.Sprintf("Worktree created at %s on branch %s", worktreePath, branch))
			fmt.Println("\nRun the Coder sessions from inside that worktree, then")
			fmt.Printf("  rasen merge --branch %s\n", branch)
		}

		if err := config.Write(stateDir, cfg); err != nil {
			return fmt.Errorf("workspace created but cannot write config.yml: %w", err)
		}

		disp.Success(fmt.Sprintf("Workspace created at %s", stateDir))
		disp.Info("Task", task)
		fmt.Println("\nEdit .rasen/config.yml to tune the run, then:")
		fmt.Println("  rasen run")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initTask, "task", "", "one-line task description for the Initializer session")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing .rasen workspace")
	initCmd.Flags().BoolVar(&initWorktree, "worktree", false, "create an isolated task branch and git worktree")
	rootCmd.AddCommand(initCmd)
}
