package cli

import (
	"context"
	"fmt"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/display"
	"github.com/rasen-dev/rasen/internal/vcs"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var mergeBranch string

// mergeCmd folds the optional worktree branch into the branch currently
// checked out in the workspace. RASEN uses one branch per task (passed
// with --branch, not per subtask): every Coder session for a
// task commits to the same branch, so there is exactly one merge point
// once the task finishes, rather than one per subtask.
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the worktree task branch into the current branch",
	Long: `merge is only meaningful when worktree.enabled is set in
config.yml. It merges the task branch named by --branch into the branch
currently checked out in the workspace (it checks out nothing itself),
then leaves the worktree directory for
the caller to remove with 'git worktree remove' once satisfied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := workspace.Find()
		if err != nil {
			return err
		}
		stateDir := workspace.Path(workDir)
		cfg, err := config.Load(stateDir)
		if err != nil {
			return fmt.Errorf("cannot load config: %w", err)
		}
		if !cfg.Worktree.Enabled {
			return fmt.Errorf("worktree.enabled is false in config.yml; nothing to merge")
		}

		branch := mergeBranch
		if branch == "" {
			return fmt.Errorf("--branch is required")
		}

		g := vcs.New(workDir)
		ctx := context.Background()

		base, err := g.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("cannot determine current branch: %w", err)
		}
		if err := g.MergeBranch(ctx, branch); err != nil {
			return fmt.Errorf("cannot merge %s into %s: %w", branch, base, err)
		}

		disp := display.New()
		disp.Success(fmt.Sprintf("Merged %s into %s", branch, base))
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVar(&mergeBranch, "branch", "", "task branch to merge (required)")
	rootCmd.AddCommand(mergeCmd)
}
