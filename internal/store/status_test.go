package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rasen-dev/rasen/internal/types"
)

func TestStatusStoreLoadReturnsNilWhenNeverWritten(t *testing.T) {
	s := NewStatusStore(filepath.Join(t.TempDir(), "status.json"))
	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap != nil {
		t.Fatalf("Load() = %+v, want nil before any write", snap)
	}
}

func TestStatusStoreSaveAndLoadStampsLastActivity(t *testing.T) {
	s := NewStatusStore(filepath.Join(t.TempDir(), "status.json"))
	ctx := context.Background()

	snap := &types.StatusSnapshot{PID: 1234, Iteration: 3, OverallStatus: "running"}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.LastActivityAt.IsZero() {
		t.Error("Save() did not stamp LastActivityAt")
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil || loaded.PID != 1234 || loaded.Iteration != 3 {
		t.Fatalf("Load() = %+v, want round-tripped snapshot", loaded)
	}
}

func TestStatusStoreSaveOverwritesPreviousSnapshot(t *testing.T) {
	s := NewStatusStore(filepath.Join(t.TempDir(), "status.json"))
	ctx := context.Background()

	if err := s.Save(ctx, &types.StatusSnapshot{PID: 1, Iteration: 1}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, &types.StatusSnapshot{PID: 1, Iteration: 2}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2 (latest snapshot)", loaded.Iteration)
	}
}
