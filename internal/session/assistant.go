// Package session implements the Session Runner: a single round-trip with
// the external coding-assistant subprocess.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rasen-dev/rasen/internal/utils"
)

// Assistant is the narrow interface the Session Runner needs from a
// coding-assistant backend. It is deliberately small so the orchestrator
// never depends on a concrete CLI.
type Assistant interface {
	// Execute spawns the assistant with promptPath as its instructions and
	// workDir as its working directory, returning a stream of its output.
	Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error)
}

// ClaudeAssistant invokes the `claude` CLI, the coding-assistant subprocess
// this implementation targets.
type ClaudeAssistant struct {
	BinaryPath   string
	Model        string
	AllowedTools []string
}

// NewClaudeAssistant resolves the claude binary the same way the CLI it is
// grounded on does: an explicit path, else PATH, else a handful of common
// install locations.
func NewClaudeAssistant(binaryPath, model string, allowedTools []string) *ClaudeAssistant {
	if binaryPath == "" {
		binaryPath = "claude"
	}
	return &ClaudeAssistant{
		BinaryPath:   utils.ResolveBinaryPath(binaryPath),
		Model:        model,
		AllowedTools: allowedTools,
	}
}

// ErrAssistantUnavailable is returned when the assistant subprocess cannot
// be spawned at all (binary absent from PATH and every fallback location).
var ErrAssistantUnavailable = fmt.Errorf(`claude not found in PATH

Add it to PATH, or set claude.binary in the state directory's config.yml
to the full path of the claude executable`)

// cmdReader waits for the subprocess on Close, the same "stream now, reap
// on close" shape a CLI subprocess wrapper needs.
type cmdReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *cmdReader) Close() error {
	r.ReadCloser.Close()
	return r.cmd.Wait()
}

// Execute spawns claude with promptPath as a context file, streaming
// stream-json output back to the caller.
func (c *ClaudeAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	args := []string{}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	if len(c.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(c.AllowedTools, ","))
	}
	args = append(args, "--output-format", "stream-json", "--verbose")
	args = append(args, promptPath)

	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	cmd.Dir = workDir
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return nil, ErrAssistantUnavailable
		}
		return nil, fmt.Errorf("cannot start assistant: %w", err)
	}
	return &cmdReader{ReadCloser: stdout, cmd: cmd}, nil
}
