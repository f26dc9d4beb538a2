// Package review implements the Review Sub-loop: a bounded Coder<->Reviewer
// cycle run after a successful Coder post-processing, either per subtask
// or once at the build level.
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/types"
)

// Config holds the Review Sub-loop's tunables.
type Config struct {
	Enabled     bool
	PerSubtask  bool
	MaxLoops    int
	SessionTimeout time.Duration
}

// DefaultMaxLoops is the default bound on reviewer iterations.
const DefaultMaxLoops = 3

// Outcome is the Review Sub-loop's result for one subtask.
type Outcome struct {
	Approved bool
	Loops    int
	Feedback string
}

// Runner drives the bounded Coder<->Reviewer cycle. VCS.CommitsSince is queried
// after every Reviewer session to confirm the read-only contract: a
// Reviewer session must produce zero new commits.
type Runner struct {
	Sessions *session.Runner
	VCS      interface {
		Head(ctx context.Context) (string, error)
		CommitsSince(ctx context.Context, head string) (int, error)
	}
	Logger *slog.Logger
}

// NewRunner constructs a review Runner.
func NewRunner(sessions *session.Runner, vcsGateway interface {
	Head(ctx context.Context) (string, error)
	CommitsSince(ctx context.Context, head string) (int, error)
}, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Sessions: sessions, VCS: vcsGateway, Logger: logger}
}

// Run executes up to cfg.MaxLoops Reviewer sessions (with an intervening
// Coder-fix session on rejection) for one subtask.
func (r *Runner) Run(ctx context.Context, cfg Config, promptCtx session.PromptContext) Outcome {
	maxLoops := cfg.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	for i := 1; i <= maxLoops; i++ {
		headBefore, _ := r.VCS.Head(ctx)

		result := r.Sessions.Run(ctx, types.RoleReviewer, promptCtx, cfg.SessionTimeout)
		if result.Status == types.SessionComplete {
			r.Logger.Info("review approved", "subtask_id", promptCtx.SubtaskID, "loop", i)
			return Outcome{Approved: true, Loops: i}
		}

		feedback, _ := session.FindTopic(result.Events, types.TopicReviewChangesRequest)

		if commits, err := r.VCS.CommitsSince(ctx, headBefore); err == nil && commits > 0 {
			r.Logger.Warn("reviewer session produced commits despite read-only instructions", "subtask_id", promptCtx.SubtaskID, "commits", commits)
		}

		if i == maxLoops {
			r.Logger.Warn("review sub-loop exhausted without approval", "subtask_id", promptCtx.SubtaskID, "loops", i)
			return Outcome{Approved: false, Loops: i, Feedback: feedback}
		}

		promptCtx.Feedback = feedback
		r.Sessions.Run(ctx, types.RoleCoder, promptCtx, cfg.SessionTimeout)
	}
	return Outcome{Approved: false, Loops: maxLoops}
}
