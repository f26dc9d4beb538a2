package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rasen-dev/rasen/internal/types"
)

func TestPlanStoreLoadReturnsErrNoPlanWhenAbsent(t *testing.T) {
	s := NewPlanStore(filepath.Join(t.TempDir(), "implementation_plan.json"))
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrNoPlan) {
		t.Fatalf("Load() error = %v, want ErrNoPlan", err)
	}
}

func TestPlanStoreCreateAndLoadRoundTrip(t *testing.T) {
	s := NewPlanStore(filepath.Join(t.TempDir(), "implementation_plan.json"))
	subtasks := []types.Subtask{
		{ID: "s1", Description: "first", Status: types.StatusPending},
		{ID: "s2", Description: "second", Status: types.StatusPending},
	}
	created, err := s.Create(context.Background(), "demo task", subtasks)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.TaskName != "demo task" || len(loaded.Subtasks) != 2 {
		t.Fatalf("Load() = %+v, want round-tripped plan", loaded)
	}
	if !loaded.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", loaded.UpdatedAt, created.UpdatedAt)
	}
}

func TestGetNextSubtaskPrefersInProgressOverPending(t *testing.T) {
	plan := &types.Plan{
		Subtasks: []types.Subtask{
			{ID: "s1", Status: types.StatusCompleted},
			{ID: "s2", Status: types.StatusPending},
			{ID: "s3", Status: types.StatusInProgress},
		},
	}
	next := GetNextSubtask(plan)
	if next == nil || next.ID != "s3" {
		t.Fatalf("GetNextSubtask() = %+v, want s3 (in-progress)", next)
	}
}

func TestGetNextSubtaskFallsBackToPending(t *testing.T) {
	plan := &types.Plan{
		Subtasks: []types.Subtask{
			{ID: "s1", Status: types.StatusCompleted},
			{ID: "s2", Status: types.StatusPending},
		},
	}
	next := GetNextSubtask(plan)
	if next == nil || next.ID != "s2" {
		t.Fatalf("GetNextSubtask() = %+v, want s2 (pending)", next)
	}
}

func TestGetNextSubtaskReturnsNilWhenAllDone(t *testing.T) {
	plan := &types.Plan{
		Subtasks: []types.Subtask{{ID: "s1", Status: types.StatusCompleted}},
	}
	if next := GetNextSubtask(plan); next != nil {
		t.Fatalf("GetNextSubtask() = %+v, want nil", next)
	}
}

func TestMarkCompleteAndIncrementAttemptsPersist(t *testing.T) {
	s := NewPlanStore(filepath.Join(t.TempDir(), "implementation_plan.json"))
	plan, err := s.Create(context.Background(), "demo", []types.Subtask{{ID: "s1", Status: types.StatusPending}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.IncrementAttempts(context.Background(), plan, "s1", "tried approach one"); err != nil {
		t.Fatalf("IncrementAttempts() error = %v", err)
	}
	if err := s.MarkComplete(context.Background(), plan, "s1"); err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}

	reloaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Subtasks[0].Status != types.StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", reloaded.Subtasks[0].Status)
	}
	if reloaded.Subtasks[0].Attempts != 1 || reloaded.Subtasks[0].LastApproach != "tried approach one" {
		t.Errorf("Subtask = %+v, want attempts=1 with last approach recorded", reloaded.Subtasks[0])
	}
}

func TestMutateUnknownSubtaskReturnsError(t *testing.T) {
	s := NewPlanStore(filepath.Join(t.TempDir(), "implementation_plan.json"))
	plan, err := s.Create(context.Background(), "demo", []types.Subtask{{ID: "s1", Status: types.StatusPending}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.MarkComplete(context.Background(), plan, "missing"); err == nil {
		t.Fatal("MarkComplete() on unknown subtask: want error, got nil")
	}
}
