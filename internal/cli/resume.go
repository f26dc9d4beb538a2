package cli

import (
	"github.com/rasen-dev/rasen/internal/orchestrator"
	"github.com/spf13/cobra"
)

// resumeCmd is semantically identical to run: the Loop Driver's state lives
// entirely on disk, so re-entering the loop after a stop is a fresh
// invocation of the same entry point (resuming is always safe). It
// exists as a separate command only for discoverability.
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue a run that previously stopped short of completion",
	Long: `resume is identical to 'run': the Loop Driver reads the plan,
recovery, and status state from disk and continues from wherever the
last run left off. An interrupted subtask (IN_PROGRESS) is always picked
up before any PENDING one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runBackground {
			return spawnBackground()
		}
		return runForeground(orchestrator.RunFlags{SkipReview: runSkipReview, SkipQA: runSkipQA})
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&runBackground, "background", false, "detach and run the loop as a background process")
	resumeCmd.Flags().BoolVar(&runSkipReview, "skip-review", false, "disable the Review Sub-loop")
	resumeCmd.Flags().BoolVar(&runSkipQA, "skip-qa", false, "disable the QA Sub-loop")
	rootCmd.AddCommand(resumeCmd)
}
