package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rasen-dev/rasen/internal/types"
)

// ErrNoPlan is returned by Load when implementation_plan.json does not yet
// exist: the Initializer session has not run yet.
var ErrNoPlan = errors.New("no implementation plan exists yet")

// PlanStore is the Plan Store: the subtask list, with statuses and attempt
// counts, atomically written and lock-protected for concurrent readers.
type PlanStore struct {
	path string
	lock *fileLock
}

// NewPlanStore returns a PlanStore backed by the JSON file at path.
func NewPlanStore(path string) *PlanStore {
	return &PlanStore{path: path, lock: newFileLock(path)}
}

// Load reads and validates the plan. Returns ErrNoPlan if the file has
// never been created.
func (s *PlanStore) Load(ctx context.Context) (*types.Plan, error) {
	var plan types.Plan
	err := s.lock.withRLock(ctx, func() error {
		if err := readJSON(s.path, &plan); err != nil {
			if os.IsNotExist(err) {
				return ErrNoPlan
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if errs := plan.ValidateWithDetails(); errs.HasErrors() {
		return nil, fmt.Errorf("plan store %s is corrupt: %w", s.path, errs)
	}
	return &plan, nil
}

// Save validates and atomically writes plan, stamping UpdatedAt.
func (s *PlanStore) Save(ctx context.Context, plan *types.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid plan: %w", err)
	}
	return s.lock.withLock(ctx, func() error {
		return writeJSONAtomic(s.path, plan)
	})
}

// Create writes a brand-new plan at version "1.0". The Loop Driver does not
// call it: the Initializer session writes the plan file itself.
func (s *PlanStore) Create(ctx context.Context, taskName string, subtasks []types.Subtask) (*types.Plan, error) {
	now := time.Now().UTC()
	plan := &types.Plan{
		Version:   "1.0",
		TaskName:  taskName,
		Subtasks:  subtasks,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Save(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// GetNextSubtask implements the resume-priority contract: the first
// IN_PROGRESS subtask if any (an interrupted subtask is preferred over a
// fresh one), otherwise the first PENDING subtask, otherwise nil.
func GetNextSubtask(plan *types.Plan) *types.Subtask {
	for i := range plan.Subtasks {
		if plan.Subtasks[i].Status == types.StatusInProgress {
			return &plan.Subtasks[i]
		}
	}
	for i := range plan.Subtasks {
		if plan.Subtasks[i].Status == types.StatusPending {
			return &plan.Subtasks[i]
		}
	}
	return nil
}

// MarkInProgress transitions subtaskID to IN_PROGRESS and persists the plan.
func (s *PlanStore) MarkInProgress(ctx context.Context, plan *types.Plan, subtaskID string) error {
	return s.mutate(ctx, plan, subtaskID, func(st *types.Subtask) {
		st.Status = types.StatusInProgress
	})
}

// MarkComplete transitions subtaskID to COMPLETED and persists the plan.
func (s *PlanStore) MarkComplete(ctx context.Context, plan *types.Plan, subtaskID string) error {
	return s.mutate(ctx, plan, subtaskID, func(st *types.Subtask) {
		st.Status = types.StatusCompleted
	})
}

// MarkFailed transitions subtaskID to FAILED and persists the plan.
func (s *PlanStore) MarkFailed(ctx context.Context, plan *types.Plan, subtaskID string) error {
	return s.mutate(ctx, plan, subtaskID, func(st *types.Subtask) {
		st.Status = types.StatusFailed
	})
}

// RevertToPending transitions subtaskID back to PENDING, used when a Review
// or QA sub-loop exhausts its bound without approval.
func (s *PlanStore) RevertToPending(ctx context.Context, plan *types.Plan, subtaskID string) error {
	return s.mutate(ctx, plan, subtaskID, func(st *types.Subtask) {
		st.Status = types.StatusPending
	})
}

// IncrementAttempts bumps subtaskID's attempt counter and records its
// last-approach note, then persists the plan.
func (s *PlanStore) IncrementAttempts(ctx context.Context, plan *types.Plan, subtaskID, approach string) error {
	return s.mutate(ctx, plan, subtaskID, func(st *types.Subtask) {
		st.Attempts++
		if approach != "" {
			st.LastApproach = approach
		}
	})
}

func (s *PlanStore) mutate(ctx context.Context, plan *types.Plan, subtaskID string, fn func(*types.Subtask)) error {
	found := false
	for i := range plan.Subtasks {
		if plan.Subtasks[i].ID == subtaskID {
			fn(&plan.Subtasks[i])
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("subtask %q not found in plan", subtaskID)
	}
	return s.Save(ctx, plan)
}

// CompletionStats returns (total, completed) subtask counts.
func (s *PlanStore) CompletionStats(plan *types.Plan) (total, completed int) {
	return plan.CompletionStats()
}
