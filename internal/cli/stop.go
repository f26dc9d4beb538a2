package cli

import (
	"fmt"
	"path/filepath"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/daemon"
	"github.com/rasen-dev/rasen/internal/display"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a backgrounded run to shut down",
	Long: `Send SIGTERM (or SIGKILL with --force) to the process named by
.rasen/rasen.pid. A graceful stop lets the Loop Driver finish its
in-flight session before exiting; --force kills immediately.`,
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

		mgr := daemon.New(
			filepath.Join(stateDir, cfg.Background.PIDFile),
			filepath.Join(stateDir, cfg.Background.LogFile),
		)
		if err := mgr.Stop(stopForce); err != nil {
			return err
		}

		disp := display.New()
		disp.Success("Stop signal sent")
		return nil
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "send SIGKILL instead of SIGTERM")
	rootCmd.AddCommand(stopCmd)
}
