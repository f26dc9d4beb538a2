// Package orchestrator implements the Loop Driver: the top-level state
// machine that decides what kind of session to run next, advances the
// plan, and enforces every termination condition.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/memory"
	"github.com/rasen-dev/rasen/internal/qa"
	"github.com/rasen-dev/rasen/internal/review"
	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/stall"
	"github.com/rasen-dev/rasen/internal/store"
	"github.com/rasen-dev/rasen/internal/types"
)

// VCS is the narrow surface the Loop Driver needs from the VCS Gateway.
// *vcs.Gateway satisfies it; tests substitute a fake.
type VCS interface {
	Head(ctx context.Context) (string, error)
	CommitsSince(ctx context.Context, head string) (int, error)
}

// driverState mirrors the INIT_NEEDED/CODING/QA_FINAL/CONFIRMING
// state machine. It is recomputed from disk state every iteration rather
// than held as a single field that could drift from the Plan Store.
type driverState int

const (
	stateInitNeeded driverState = iota
	stateCoding
	stateQAFinal
	stateConfirming
)

// RunFlags are the per-run overrides a `run` invocation can pass.
type RunFlags struct {
	SkipReview bool
	SkipQA     bool
}

// Result is what Run returns once the loop terminates.
type Result struct {
	Reason            types.TerminationReason
	Iterations        int
	SubtasksCompleted int
	TotalCommits      int
}

// Driver is the Loop Driver. Every dependency is a store or runner passed
// in by reference at construction; the driver holds no ambient singletons.
type Driver struct {
	TaskName string
	Plan     *store.PlanStore
	Recovery *store.RecoveryStore
	Status   *store.StatusStore
	Memory   *memory.Store
	Sessions *session.Runner
	VCS      VCS
	Review   *review.Runner
	QA       *qa.Runner
	Config   *config.Config
	Logger   *slog.Logger

	// Shutdown is polled at the top of every iteration; a signal handler
	// closes it to request a graceful stop (a one-shot set
	// shutdown flag).
	Shutdown <-chan struct{}

	// pid is this process's id, reported in every status snapshot.
	pid int
	// currentSubtask, sessionStart, and commitsThisSession describe the
	// in-flight Coder session, if any; cleared whenever the driver is not
	// in the CODING state.
	currentSubtask     *types.Subtask
	sessionStart       time.Time
	commitsThisSession int
}

// NewDriver constructs a Driver. logger defaults to slog.Default() if nil.
func NewDriver(taskName string, plan *store.PlanStore, recovery *store.RecoveryStore, status *store.StatusStore,
	mem *memory.Store, sessions *session.Runner, vcsGateway VCS, reviewRunner *review.Runner, qaRunner *qa.Runner,
	cfg *config.Config, logger *slog.Logger, shutdown <-chan struct{}) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		TaskName: taskName,
		Plan:     plan,
		Recovery: recovery,
		Status:   status,
		Memory:   mem,
		Sessions: sessions,
		VCS:      vcsGateway,
		Review:   reviewRunner,
		QA:       qaRunner,
		Config:   cfg,
		Logger:   logger,
		Shutdown: shutdown,
		pid:      os.Getpid(),
	}
}

// Run executes the Loop Driver until it reaches a terminal condition.
func (d *Driver) Run(ctx context.Context, flags RunFlags) (Result, error) {
	startTime := time.Now()
	headAtStart, _ := d.VCS.Head(ctx)
	noCommitCounter := stall.NewNoCommitCounter()
	failureCounter := &stall.ConsecutiveFailureCounter{}
	confirmations := 0
	iteration := 0
	qaApproved := false

	stallCfg := stall.Config{
		MaxNoCommitSessions:    d.Config.StallDetection.MaxNoCommitSessions,
		MaxConsecutiveFailures: d.Config.StallDetection.MaxConsecutiveFailures,
		CircularFixThreshold:   d.Config.StallDetection.CircularFixThreshold,
	}

	for {
		iteration++
		log := d.Logger.With("run_id", d.TaskName, "iteration", iteration)

		if reason, done := d.checkGlobalLimits(iteration, startTime); done {
			return d.finish(ctx, reason, iteration, headAtStart)
		}

		select {
		case <-d.Shutdown:
			log.Warn("shutdown requested, finishing in-flight work")
			return d.finish(ctx, types.ReasonUserCancelled, iteration, headAtStart)
		default:
		}

		plan, err := d.Plan.Load(ctx)
		switch {
		case errors.Is(err, store.ErrNoPlan):
			d.clearCurrentSubtask()
			reason, loopErr := d.runInitializer(ctx, log, failureCounter, stallCfg)
			if loopErr != nil {
				return d.finish(ctx, types.ReasonError, iteration, headAtStart)
			}
			if reason != "" {
				return d.finish(ctx, reason, iteration, headAtStart)
			}
			confirmations = 0
		case err != nil:
			log.Error("cannot load plan", "error", err)
			return d.finish(ctx, types.ReasonError, iteration, headAtStart)
		default:
			state := d.classify(plan, qaApproved, flags)
			switch state {
			case stateCoding:
				reason, _, loopErr := d.runCodingIteration(ctx, log, plan, flags, noCommitCounter, failureCounter, stallCfg)
				if loopErr != nil {
					return d.finish(ctx, types.ReasonError, iteration, headAtStart)
				}
				if reason != "" {
					return d.finish(ctx, reason, iteration, headAtStart)
				}
				qaApproved = false
				confirmations = 0
			case stateQAFinal:
				d.clearCurrentSubtask()
				approved, reason, loopErr := d.runQAFinal(ctx, log, plan)
				if loopErr != nil {
					return d.finish(ctx, types.ReasonError, iteration, headAtStart)
				}
				if reason != "" {
					return d.finish(ctx, reason, iteration, headAtStart)
				}
				qaApproved = approved
				confirmations = 0
			case stateConfirming:
				d.clearCurrentSubtask()
				confirmations++
				log.Info("confirming completion", "confirmations", confirmations)
				if confirmations >= 2 {
					return d.finish(ctx, types.ReasonComplete, iteration, headAtStart)
				}
			}
		}

		d.saveStatus(ctx, iteration, failureCounter.Count(), "running", "")

		select {
		case <-ctx.Done():
			return d.finish(ctx, types.ReasonUserCancelled, iteration, headAtStart)
		case <-d.Shutdown:
			return d.finish(ctx, types.ReasonUserCancelled, iteration, headAtStart)
		case <-time.After(d.Config.OrchestratorSessionDelay()):
		}
	}
}

// clearCurrentSubtask drops the in-flight subtask/session fields a status
// snapshot reports; called whenever the driver is not in the CODING state.
func (d *Driver) clearCurrentSubtask() {
	d.currentSubtask = nil
	d.sessionStart = time.Time{}
	d.commitsThisSession = 0
}

// classify recomputes the current driverState from the plan on disk.
func (d *Driver) classify(plan *types.Plan, qaApproved bool, flags RunFlags) driverState {
	total, completed := plan.CompletionStats()
	if completed < total {
		return stateCoding
	}
	if d.Config.QA.Enabled && !flags.SkipQA && !qaApproved {
		return stateQAFinal
	}
	return stateConfirming
}

func (d *Driver) checkGlobalLimits(iteration int, startTime time.Time) (types.TerminationReason, bool) {
	if max := d.Config.Orchestrator.MaxIterations; max > 0 && iteration > max {
		return types.ReasonMaxIterations, true
	}
	if maxRuntime := d.Config.OrchestratorMaxRuntime(); maxRuntime > 0 && time.Since(startTime) > maxRuntime {
		return types.ReasonMaxRuntime, true
	}
	return "", false
}

func (d *Driver) finish(ctx context.Context, reason types.TerminationReason, iteration int, headAtStart string) (Result, error) {
	plan, err := d.Plan.Load(ctx)
	result := Result{Reason: reason, Iterations: iteration}
	if err == nil {
		total, completed := plan.CompletionStats()
		result.SubtasksCompleted = completed
		_ = total
	}
	if commits, commitErr := d.VCS.CommitsSince(ctx, headAtStart); commitErr == nil {
		result.TotalCommits = commits
	}
	d.saveStatus(ctx, iteration, 0, "terminated", reason.String())
	return result, nil
}

func (d *Driver) saveStatus(ctx context.Context, iteration, consecutiveFailures int, overallStatus, terminationReason string) {
	plan, err := d.Plan.Load(ctx)
	snap := &types.StatusSnapshot{
		PID:                 d.pid,
		Iteration:           iteration,
		OverallStatus:       overallStatus,
		ConsecutiveFailures: consecutiveFailures,
		TerminationReason:   terminationReason,
		CommitsThisSession:  d.commitsThisSession,
	}
	if d.currentSubtask != nil {
		snap.SubtaskID = d.currentSubtask.ID
		snap.SubtaskDescription = d.currentSubtask.Description
	}
	if !d.sessionStart.IsZero() {
		snap.SessionStartTime = d.sessionStart
	}
	if err == nil {
		total, completed := plan.CompletionStats()
		snap.TotalSubtasks = total
		snap.CompletedSubtasks = completed
	}
	if existing, loadErr := d.Status.Load(ctx); loadErr == nil && existing != nil {
		snap.StartTime = existing.StartTime
	}
	if snap.StartTime.IsZero() {
		snap.StartTime = time.Now().UTC()
	}
	if saveErr := d.Status.Save(ctx, snap); saveErr != nil {
		d.Logger.Warn("cannot save status snapshot", "error", saveErr)
	}
}
