package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set by goreleaser via ldflags
	Version = "dev"
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "rasen",
	Short: "Autonomous iteration loop for coding assistant sessions",
	Long: `rasen runs a coding assistant through a bounded, resumable loop of
Coder, Reviewer, and QA sessions against a plan of subtasks, committing
progress to version control and recording recovery state after every
session.

Core commands:
  init    Create a .rasen workspace from a task description
  run     Run the Loop Driver until it terminates
  resume  Continue a run that previously stopped short of completion
  status  Show the current plan, subtask, and termination state
  logs    Tail the background run's log file
  stop    Signal a backgrounded run to shut down`,
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("rasen version %s\n", Version))
}

func exitError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	os.Exit(1)
}
