package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rasen-dev/rasen/internal/types"
)

// RoleConfig is the small, per-role configuration record
// prescribes in place of a class hierarchy: the Session Runner is a single
// function parameterized by one of these.
type RoleConfig struct {
	Role             types.AgentRole
	PromptTemplate   string // template name, resolved via a Renderer
	RequiresCommit   bool   // whether a claimed completion needs >=1 commit
	RequiresBackpressure bool // whether build.done needs Validator evidence
}

// Roles are the four recognized agent roles and their policy differences
// describes: prompt template, backpressure requirement, expected commit
// side effect, recognized completion topic.
var Roles = map[types.AgentRole]RoleConfig{
	types.RoleInitializer: {Role: types.RoleInitializer, PromptTemplate: "initializer", RequiresCommit: false, RequiresBackpressure: false},
	types.RoleCoder:       {Role: types.RoleCoder, PromptTemplate: "coder", RequiresCommit: true, RequiresBackpressure: true},
	types.RoleReviewer:    {Role: types.RoleReviewer, PromptTemplate: "reviewer", RequiresCommit: false, RequiresBackpressure: false},
	types.RoleQA:          {Role: types.RoleQA, PromptTemplate: "qa", RequiresCommit: false, RequiresBackpressure: false},
}

// Renderer resolves and renders a role's prompt template against a
// PromptContext. Implemented by internal/prompts.Renderer (state
// directory override, else embedded default).
type Renderer interface {
	Render(role types.AgentRole, ctx PromptContext) (string, error)
}

// PromptContext is the variable information injected into a role's prompt
// template: current subtask, failed-approach history, budgeted memory
// excerpt, and review/QA feedback when iterating a sub-loop.
type PromptContext struct {
	TaskName        string
	SubtaskID       string
	SubtaskDesc     string
	FailedApproaches []string
	MemoryExcerpt   string
	Feedback        string
}

// Runner is the Session Runner: it renders a prompt, spawns the assistant
// subprocess with a hard per-session deadline, and parses its output into a
// SessionResult. It never queries version control itself; that is the
// Post-Session Processor's job, applied to the result this returns.
type Runner struct {
	Assistant   Assistant
	Renderer    Renderer
	StateDir    string
	WorkDir     string
	Logger      *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(assistant Assistant, renderer Renderer, stateDir, workDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Assistant: assistant, Renderer: renderer, StateDir: stateDir, WorkDir: workDir, Logger: logger}
}

// Run executes one round-trip for role against ctx, enforcing timeout.
func (r *Runner) Run(ctx context.Context, role types.AgentRole, promptCtx PromptContext, timeout time.Duration) types.SessionResult {
	start := time.Now()
	log := r.Logger.With("role", string(role), "subtask_id", promptCtx.SubtaskID)

	rendered, err := r.Renderer.Render(role, promptCtx)
	if err != nil {
		log.Error("cannot render prompt", "error", err)
		return types.SessionResult{Status: types.SessionFailed, Err: fmt.Errorf("cannot render prompt for %s: %w", role, err), Duration: time.Since(start)}
	}

	promptPath, err := r.writePrompt(role, promptCtx.SubtaskID, rendered)
	if err != nil {
		log.Error("cannot write prompt file", "error", err)
		return types.SessionResult{Status: types.SessionFailed, Err: err, Duration: time.Since(start)}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info("spawning assistant session", "prompt_path", promptPath)
	stream, err := r.Assistant.Execute(runCtx, r.WorkDir, promptPath)
	if err != nil {
		if errors.Is(err, ErrAssistantUnavailable) {
			log.Error("assistant unavailable", "error", err)
			return types.SessionResult{Status: types.SessionFailed, Err: err, Duration: time.Since(start)}
		}
		log.Error("cannot start assistant", "error", err)
		return types.SessionResult{Status: types.SessionFailed, Err: err, Duration: time.Since(start)}
	}

	output, readErr := io.ReadAll(stream)
	closeErr := stream.Close()

	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		log.Warn("session timed out", "duration", duration)
		return types.SessionResult{Status: types.SessionTimeout, RawOutput: string(output), Duration: duration, Err: context.DeadlineExceeded}
	}
	if readErr != nil {
		log.Error("error reading assistant output", "error", readErr)
		return types.SessionResult{Status: types.SessionFailed, RawOutput: string(output), Duration: duration, Err: readErr}
	}
	if closeErr != nil {
		log.Warn("assistant exited with error", "error", closeErr)
		return types.SessionResult{Status: types.SessionFailed, RawOutput: string(output), Duration: duration, Err: closeErr}
	}

	events := ExtractEvents(string(output))
	status := classify(role, events)
	log.Info("session finished", "status", string(status), "event_count", len(events))

	return types.SessionResult{
		Status:    status,
		RawOutput: string(output),
		Events:    events,
		Duration:  duration,
	}
}

func classify(role types.AgentRole, events []types.Event) types.SessionStatus {
	if _, ok := FindTopic(events, types.TopicBuildBlocked); ok {
		return types.SessionBlocked
	}
	switch role {
	case types.RoleInitializer:
		if _, ok := FindTopic(events, types.TopicInitDone); ok {
			return types.SessionComplete
		}
	case types.RoleCoder:
		if _, ok := FindTopic(events, types.TopicBuildDone); ok {
			return types.SessionComplete
		}
	case types.RoleReviewer:
		if _, ok := FindTopic(events, types.TopicReviewApproved); ok {
			return types.SessionComplete
		}
		if _, ok := FindTopic(events, types.TopicReviewChangesRequest); ok {
			return types.SessionContinue
		}
	case types.RoleQA:
		if _, ok := FindTopic(events, types.TopicQAApproved); ok {
			return types.SessionComplete
		}
		if _, ok := FindTopic(events, types.TopicQARejected); ok {
			return types.SessionContinue
		}
	}
	return types.SessionContinue
}

// writePrompt writes the rendered prompt to the state directory, as
// prompt_<role>[_<subtask>].md, for debugging the most recently rendered
// prompt.
func (r *Runner) writePrompt(role types.AgentRole, subtaskID, rendered string) (string, error) {
	name := fmt.Sprintf("prompt_%s", role)
	if subtaskID != "" {
		name += "_" + subtaskID
	}
	name += ".md"
	path := filepath.Join(r.StateDir, name)
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("cannot write prompt file %s: %w", path, err)
	}
	return path, nil
}
