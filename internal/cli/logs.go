package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print or tail the daemon log",
	Long: `Print the last --lines of .rasen/rasen.log (the file a
background run's stdout/stderr is redirected to), or tail it with
--follow the way 'tail -f' would.`,
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
		logPath := filepath.Join(stateDir, cfg.Background.LogFile)

		if err := printTail(logPath, logsLines); err != nil {
			return err
		}
		if logsFollow {
			return followFile(logPath)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVar(&logsFollow, "follow", false, "keep printing new lines as they are written")
	logsCmd.Flags().IntVar(&logsLines, "lines", 50, "number of trailing lines to print")
	rootCmd.AddCommand(logsCmd)
}

// printTail prints the last n lines of path. Reads the whole file since
// the daemon log is expected to be modest in size for a single run.
func printTail(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No log file yet; run 'rasen run' or 'rasen run --background' first.")
			return nil
		}
		return err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

// followFile polls path for appended bytes and prints them, like tail -f.
func followFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fmt.Print(line)
		}
		if err == io.EOF {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
	}
}
