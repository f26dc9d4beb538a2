package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rasen-dev/rasen/internal/memory"
	"github.com/rasen-dev/rasen/internal/qa"
	"github.com/rasen-dev/rasen/internal/review"
	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/stall"
	"github.com/rasen-dev/rasen/internal/store"
	"github.com/rasen-dev/rasen/internal/types"
	"github.com/rasen-dev/rasen/internal/validate"
)

// processOutcome is what processSession hands back to the caller: whether
// the session's claimed completion held up against observable reality.
type processOutcome struct {
	Success  bool
	Approach string
	Commits  int
}

// processSession is the Post-Session Processor: the trust
// boundary between a session's self-reported events and the state the
// driver actually commits to disk.
func (d *Driver) processSession(ctx context.Context, log *slog.Logger, role types.AgentRole, subtaskID string, ordinal int, headBefore string, result types.SessionResult) (processOutcome, error) {
	commits, err := d.VCS.CommitsSince(ctx, headBefore)
	if err != nil {
		return processOutcome{}, fmt.Errorf("cannot count commits since %s: %w", headBefore, err)
	}

	roleCfg := session.Roles[role]
	approach := session.ExtractApproach(result.RawOutput)

	claimed, completionPayload := claimedCompletion(role, result.Events)

	success := claimed
	if claimed && roleCfg.RequiresBackpressure {
		backpressureCfg := validate.Config{
			RequireTests: d.Config.Backpressure.RequireTests,
			RequireLint:  d.Config.Backpressure.RequireLint,
		}
		_, ok := validate.Validate(completionPayload, backpressureCfg)
		if !ok {
			log.Warn("build.done rejected by backpressure", "subtask_id", subtaskID, "payload", completionPayload)
		}
		success = success && ok
	}
	if claimed && roleCfg.RequiresCommit {
		if commits < 1 {
			log.Warn("completion claimed with zero commits, rejecting", "subtask_id", subtaskID)
		}
		success = success && commits >= 1
	}

	var commitID string
	if success && commits > 0 {
		if head, err := d.VCS.Head(ctx); err == nil {
			commitID = head
		}
	}

	if err := d.Recovery.RecordAttempt(ctx, subtaskID, ordinal, success, approach, commitID); err != nil {
		log.Warn("cannot record attempt", "error", err)
	}

	if success {
		if commitID != "" {
			if err := d.Recovery.RecordGoodCommit(ctx, commitID, subtaskID); err != nil {
				log.Warn("cannot record good commit", "error", err)
			}
		}
		if d.Memory != nil && d.Config.Memory.Enabled {
			for _, marker := range session.ExtractMemoryMarkers(result.RawOutput) {
				if _, err := d.Memory.Append(marker.Kind, marker.Content, nil); err != nil {
					log.Warn("cannot append memory entry", "error", err)
				}
			}
		}
	}

	return processOutcome{Success: success, Approach: approach, Commits: commits}, nil
}

// claimedCompletion reports whether role's events include its completion
// topic, and returns that event's payload for backpressure inspection.
func claimedCompletion(role types.AgentRole, events []types.Event) (bool, string) {
	switch role {
	case types.RoleInitializer:
		payload, ok := session.FindTopic(events, types.TopicInitDone)
		return ok, payload
	case types.RoleCoder:
		payload, ok := session.FindTopic(events, types.TopicBuildDone)
		return ok, payload
	}
	return false, ""
}

// runInitializer drives the INIT_NEEDED state: repeated Initializer
// sessions until a plan exists or the consecutive-failure limit trips.
func (d *Driver) runInitializer(ctx context.Context, log *slog.Logger, failures *stall.ConsecutiveFailureCounter, stallCfg stall.Config) (types.TerminationReason, error) {
	headBefore, _ := d.VCS.Head(ctx)
	promptCtx := session.PromptContext{TaskName: d.TaskName}

	result := d.Sessions.Run(ctx, types.RoleInitializer, promptCtx, d.Config.OrchestratorSessionTimeout())
	if result.Status == types.SessionTimeout {
		return types.ReasonSessionTimeout, nil
	}

	outcome, err := d.processSession(ctx, log, types.RoleInitializer, "", 0, headBefore, result)
	if err != nil {
		return "", err
	}

	if failures.Observe(outcome.Success, stallCfg) {
		return types.ReasonConsecutiveFailures, nil
	}
	return "", nil
}

// runCodingIteration drives one CODING-state iteration: selects the next
// subtask, runs a Coder session, then the optional per-subtask Review and
// QA passes.
func (d *Driver) runCodingIteration(ctx context.Context, log *slog.Logger, plan *types.Plan, flags RunFlags,
	noCommits *stall.NoCommitCounter, failures *stall.ConsecutiveFailureCounter, stallCfg stall.Config) (types.TerminationReason, bool, error) {

	subtask := store.GetNextSubtask(plan)
	if subtask == nil {
		d.clearCurrentSubtask()
		return "", true, nil
	}
	subtaskLog := log.With("subtask_id", subtask.ID)
	d.currentSubtask = subtask

	if err := d.Plan.MarkInProgress(ctx, plan, subtask.ID); err != nil {
		subtaskLog.Error("cannot mark subtask in progress", "error", err)
		return "", false, err
	}

	// Cheap guard before asking the Coder to retry: if every recent attempt
	// on this subtask has failed, stop instead of spawning another one.
	if thrashing, err := d.Recovery.IsThrashing(ctx, subtask.ID, d.Config.StallDetection.MaxConsecutiveFailures); err == nil && thrashing {
		subtaskLog.Warn("subtask thrashing on repeated failed attempts, stopping before retry")
		return types.ReasonLoopThrashing, false, nil
	}

	failedApproaches, _ := d.Recovery.FailedApproaches(ctx, subtask.ID)
	var memoryExcerpt string
	if d.Memory != nil && d.Config.Memory.Enabled {
		if entries, err := d.Memory.Load(); err == nil {
			memoryExcerpt = memory.FormatForInjection(entries, d.Config.Memory.MaxTokens)
		}
	}

	promptCtx := session.PromptContext{
		TaskName:         d.TaskName,
		SubtaskID:        subtask.ID,
		SubtaskDesc:      subtask.Description,
		FailedApproaches: failedApproaches,
		MemoryExcerpt:    memoryExcerpt,
	}

	d.sessionStart = time.Now().UTC()
	headBefore, _ := d.VCS.Head(ctx)
	result := d.Sessions.Run(ctx, types.RoleCoder, promptCtx, d.Config.OrchestratorSessionTimeout())
	if result.Status == types.SessionTimeout {
		return types.ReasonSessionTimeout, false, nil
	}

	outcome, err := d.processSession(ctx, subtaskLog, types.RoleCoder, subtask.ID, subtask.Attempts+1, headBefore, result)
	if err != nil {
		return "", false, err
	}
	d.commitsThisSession = outcome.Commits

	noCommitStalled := noCommits.Observe(subtask.ID, outcome.Commits, stallCfg)
	if failures.Observe(outcome.Success, stallCfg) {
		return types.ReasonConsecutiveFailures, false, nil
	}

	// processSession has already recorded this attempt as the newest
	// entry; compare against the up-to-three attempts before it.
	recent, _ := d.Recovery.RecentAttempts(ctx, subtask.ID, 4)
	if len(recent) > 0 {
		recent = recent[:len(recent)-1]
	}
	var priorApproaches []string
	for _, a := range recent {
		if a.Approach != "" {
			priorApproaches = append(priorApproaches, a.Approach)
		}
	}
	if verdict := stall.Evaluate(noCommitStalled, outcome.Approach, priorApproaches, stallCfg); verdict.Stalled {
		return verdict.Reason, false, nil
	}

	if !outcome.Success {
		if err := d.Plan.IncrementAttempts(ctx, plan, subtask.ID, outcome.Approach); err != nil {
			subtaskLog.Warn("cannot record attempt on subtask", "error", err)
		}
		return "", false, nil
	}

	if err := d.Plan.MarkComplete(ctx, plan, subtask.ID); err != nil {
		subtaskLog.Error("cannot mark subtask complete", "error", err)
		return "", false, err
	}

	if d.Review != nil && d.Config.Review.Enabled && d.Config.Review.PerSubtask && !flags.SkipReview {
		reviewCfg := review.Config{
			MaxLoops:       d.Config.Review.MaxLoops,
			SessionTimeout: d.Config.OrchestratorSessionTimeout(),
		}
		reviewOutcome := d.Review.Run(ctx, reviewCfg, promptCtx)
		if !reviewOutcome.Approved {
			subtaskLog.Warn("review sub-loop exhausted without approval, reverting to pending", "feedback", reviewOutcome.Feedback)
			if err := d.Plan.RevertToPending(ctx, plan, subtask.ID); err != nil {
				return "", false, err
			}
			if err := d.Recovery.RecordAttempt(ctx, subtask.ID, subtask.Attempts+1, false, "review rejected: "+reviewOutcome.Feedback, ""); err != nil {
				subtaskLog.Warn("cannot record review rejection attempt", "error", err)
			}
			return "", false, nil
		}
	}

	if d.QA != nil && d.Config.QA.Enabled && d.Config.QA.PerSubtask && !flags.SkipQA {
		qaCfg := qa.Config{
			MaxIterations:           1,
			RecurringIssueThreshold: d.Config.QA.RecurringIssueThreshold,
			SessionTimeout:          d.Config.OrchestratorSessionTimeout(),
		}
		qaOutcome, err := d.QA.Run(ctx, qaCfg, promptCtx)
		if err != nil {
			return "", false, err
		}
		if !qaOutcome.Approved {
			subtaskLog.Warn("per-subtask qa rejected, reverting to pending")
			if err := d.Plan.RevertToPending(ctx, plan, subtask.ID); err != nil {
				return "", false, err
			}
			return "", false, nil
		}
	}

	return "", true, nil
}

// runQAFinal drives the QA_FINAL state: a build-level QA sub-loop once all
// subtasks are COMPLETED.
func (d *Driver) runQAFinal(ctx context.Context, log *slog.Logger, plan *types.Plan) (bool, types.TerminationReason, error) {
	if d.QA == nil {
		return true, "", nil
	}
	qaCfg := qa.Config{
		MaxIterations:           d.Config.QA.MaxIterations,
		RecurringIssueThreshold: d.Config.QA.RecurringIssueThreshold,
		SessionTimeout:          d.Config.OrchestratorSessionTimeout(),
	}
	promptCtx := session.PromptContext{TaskName: d.TaskName}

	outcome, err := d.QA.Run(ctx, qaCfg, promptCtx)
	if err != nil {
		return false, "", err
	}
	if outcome.Escalated {
		log.Error("qa sub-loop escalated on recurring issues")
		return false, types.ReasonError, nil
	}
	if !outcome.Approved {
		log.Warn("qa sub-loop exhausted without approval")
		return false, "", nil
	}
	return true, "", nil
}
