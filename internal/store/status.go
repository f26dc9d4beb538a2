package store

import (
	"context"
	"os"
	"time"

	"github.com/rasen-dev/rasen/internal/types"
)

// StatusStore holds the single live snapshot file external observers (the
// status command, a dashboard, a CI job) read. Every write is atomic; there
// is no append-only history here, only the latest snapshot.
type StatusStore struct {
	path string
	lock *fileLock
}

// NewStatusStore returns a StatusStore backed by the JSON file at path.
func NewStatusStore(path string) *StatusStore {
	return &StatusStore{path: path, lock: newFileLock(path)}
}

// Load reads the current snapshot. Returns (nil, nil) if no run has ever
// written one.
func (s *StatusStore) Load(ctx context.Context) (*types.StatusSnapshot, error) {
	var snap types.StatusSnapshot
	err := s.lock.withRLock(ctx, func() error {
		if err := readJSON(s.path, &snap); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if snap.StartTime.IsZero() && snap.PID == 0 {
		return nil, nil
	}
	return &snap, nil
}

// Save atomically writes snap, stamping LastActivityAt to now. LastActivityAt
// is monotonically non-decreasing within a run because every write stamps
// the current wall-clock time and no write ever goes back to an older
// snapshot.
func (s *StatusStore) Save(ctx context.Context, snap *types.StatusSnapshot) error {
	snap.LastActivityAt = time.Now().UTC()
	return s.lock.withLock(ctx, func() error {
		return writeJSONAtomic(s.path, snap)
	})
}
