// Package qa implements the QA Sub-loop: a bounded Coder<->QA cycle run
// once all subtasks are COMPLETED, writing an escalation artifact for a human
// when the same issue keeps recurring.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/types"
)

// Config holds the QA Sub-loop's tunables.
type Config struct {
	MaxIterations          int
	RecurringIssueThreshold int
	SessionTimeout         time.Duration
}

// DefaultMaxIterations is the default bound on QA iterations.
const DefaultMaxIterations = 50

// DefaultRecurringIssueThreshold is the default occurrence count
// before an issue triggers human escalation.
const DefaultRecurringIssueThreshold = 3

// EscalationFileName is the artifact written to the project root when the
// sub-loop gives up on recurring issues.
const EscalationFileName = "QA_ESCALATION.md"

// Outcome is the QA Sub-loop's result.
type Outcome struct {
	Approved   bool
	Escalated  bool
	Iterations int
	History    *types.QAHistory
}

// Runner drives the bounded Coder<->QA cycle.
type Runner struct {
	Sessions *session.Runner
	WorkDir  string
	Logger   *slog.Logger
	// VCS is optional; when set, each QA session's commit count is checked
	// to confirm the read-only contract, the same way the Review Sub-loop does.
	VCS interface {
		Head(ctx context.Context) (string, error)
		CommitsSince(ctx context.Context, head string) (int, error)
	}
}

// NewRunner constructs a qa Runner. workDir is the project root the
// escalation artifact is written to.
func NewRunner(sessions *session.Runner, workDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Sessions: sessions, WorkDir: workDir, Logger: logger}
}

// Run executes up to cfg.MaxIterations QA sessions, feeding rejected
// iterations back into a Coder-fix session's prompt context via
// promptCtx.Feedback before the next QA pass.
func (r *Runner) Run(ctx context.Context, cfg Config, promptCtx session.PromptContext) (Outcome, error) {
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	threshold := cfg.RecurringIssueThreshold
	if threshold <= 0 {
		threshold = DefaultRecurringIssueThreshold
	}

	history := types.NewQAHistory()

	for i := 1; i <= maxIterations; i++ {
		var headBefore string
		if r.VCS != nil {
			headBefore, _ = r.VCS.Head(ctx)
		}

		result := r.Sessions.Run(ctx, types.RoleQA, promptCtx, cfg.SessionTimeout)

		if r.VCS != nil {
			if commits, err := r.VCS.CommitsSince(ctx, headBefore); err == nil && commits > 0 {
				r.Logger.Warn("qa session produced commits despite read-only instructions", "iteration", i, "commits", commits)
			}
		}

		approved := result.Status == types.SessionComplete
		var issues []string
		if !approved {
			if payload, ok := session.FindTopic(result.Events, types.TopicQARejected); ok {
				issues = splitIssues(payload)
			}
		}

		recurring := history.RecordIteration(types.QAIteration{
			Ordinal:   i,
			Approved:  approved,
			Issues:    issues,
			Timestamp: time.Now().UTC(),
		}, threshold)

		if approved {
			r.Logger.Info("qa approved", "iteration", i)
			return Outcome{Approved: true, Iterations: i, History: history}, nil
		}

		if len(recurring) > 0 {
			r.Logger.Warn("qa sub-loop escalating on recurring issues", "iteration", i, "issues", recurring)
			if err := r.writeEscalation(history, recurring); err != nil {
				return Outcome{Approved: false, Escalated: true, Iterations: i, History: history}, err
			}
			return Outcome{Approved: false, Escalated: true, Iterations: i, History: history}, nil
		}

		promptCtx.Feedback = strings.Join(issues, "\n")
		r.Sessions.Run(ctx, types.RoleCoder, promptCtx, cfg.SessionTimeout)
	}

	r.Logger.Warn("qa sub-loop exhausted max iterations without approval", "iterations", maxIterations)
	return Outcome{Approved: false, Iterations: maxIterations, History: history}, nil
}

func splitIssues(payload string) []string {
	lines := strings.Split(payload, "\n")
	var issues []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			issues = append(issues, line)
		}
	}
	return issues
}

// writeEscalation writes a human-readable summary of the QA history and
// the issues that tripped the recurring threshold to the project root.
func (r *Runner) writeEscalation(history *types.QAHistory, recurring []string) error {
	var sb strings.Builder
	sb.WriteString("# QA Escalation\n\n")
	sb.WriteString("The QA sub-loop could not reach approval: the following issues kept\n")
	sb.WriteString("recurring across iterations and require human attention.\n\n")
	sb.WriteString("## Recurring issues\n\n")
	for _, issue := range recurring {
		sb.WriteString(fmt.Sprintf("- %s (seen %d times)\n", issue, history.IssueCount[issue]))
	}
	sb.WriteString("\n## Iteration history\n\n")
	for _, iter := range history.Iterations {
		status := "rejected"
		if iter.Approved {
			status = "approved"
		}
		sb.WriteString(fmt.Sprintf("### Iteration %d (%s) — %s\n\n", iter.Ordinal, status, iter.Timestamp.Format(time.RFC3339)))
		for _, issue := range iter.Issues {
			sb.WriteString(fmt.Sprintf("- %s\n", issue))
		}
		sb.WriteString("\n")
	}

	path := filepath.Join(r.WorkDir, EscalationFileName)
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
