package store

import (
	"context"
	"os"
	"time"

	"github.com/rasen-dev/rasen/internal/types"
)

// attemptsDoc is the on-disk shape of attempt_history.json: a single
// append-only log of every session attempt across all subtasks.
type attemptsDoc struct {
	Attempts []types.AttemptRecord `json:"attempts"`
}

// goodCommitsDoc is the on-disk shape of good_commits.json: an append-only
// ledger of commits known to pass backpressure.
type goodCommitsDoc struct {
	GoodCommits []types.GoodCommitRecord `json:"good_commits"`
}

// RecoveryStore holds the append-only attempt history and good-commit
// ledger in the two separate files the state directory layout names
// (attempt_history.json, good_commits.json), and answers the
// thrashing-detection queries the Stall Detector and the Coder prompt
// builder depend on.
type RecoveryStore struct {
	attemptsPath    string
	goodCommitsPath string
	attemptsLock    *fileLock
	goodCommitsLock *fileLock
}

// NewRecoveryStore returns a RecoveryStore backed by attempt_history.json
// and good_commits.json under dir.
func NewRecoveryStore(dir string) *RecoveryStore {
	attemptsPath := dir + "/attempt_history.json"
	goodCommitsPath := dir + "/good_commits.json"
	return &RecoveryStore{
		attemptsPath:    attemptsPath,
		goodCommitsPath: goodCommitsPath,
		attemptsLock:    newFileLock(attemptsPath),
		goodCommitsLock: newFileLock(goodCommitsPath),
	}
}

func (s *RecoveryStore) loadAttempts() (attemptsDoc, error) {
	var doc attemptsDoc
	if err := readJSON(s.attemptsPath, &doc); err != nil {
		if os.IsNotExist(err) {
			return attemptsDoc{}, nil
		}
		return attemptsDoc{}, err
	}
	return doc, nil
}

func (s *RecoveryStore) loadGoodCommits() (goodCommitsDoc, error) {
	var doc goodCommitsDoc
	if err := readJSON(s.goodCommitsPath, &doc); err != nil {
		if os.IsNotExist(err) {
			return goodCommitsDoc{}, nil
		}
		return goodCommitsDoc{}, err
	}
	return doc, nil
}

// RecordAttempt appends an attempt record for subtaskID.
func (s *RecoveryStore) RecordAttempt(ctx context.Context, subtaskID string, ordinal int, success bool, approach, commitID string) error {
	return s.attemptsLock.withLock(ctx, func() error {
		doc, err := s.loadAttempts()
		if err != nil {
			return err
		}
		doc.Attempts = append(doc.Attempts, types.AttemptRecord{
			SubtaskID:      subtaskID,
			SessionOrdinal: ordinal,
			Success:        success,
			Approach:       approach,
			CommitID:       commitID,
			Timestamp:      time.Now().UTC(),
		})
		return writeJSONAtomic(s.attemptsPath, &doc)
	})
}

// RecordGoodCommit appends a good-commit record. Good-commit records never
// shrink: this is the only mutation this log supports.
func (s *RecoveryStore) RecordGoodCommit(ctx context.Context, commitID, subtaskID string) error {
	return s.goodCommitsLock.withLock(ctx, func() error {
		doc, err := s.loadGoodCommits()
		if err != nil {
			return err
		}
		doc.GoodCommits = append(doc.GoodCommits, types.GoodCommitRecord{
			CommitID:  commitID,
			SubtaskID: subtaskID,
			Timestamp: time.Now().UTC(),
		})
		return writeJSONAtomic(s.goodCommitsPath, &doc)
	})
}

// FailedApproaches returns every recorded failed approach for subtaskID, in
// chronological order, so the Coder prompt can be told what not to repeat.
func (s *RecoveryStore) FailedApproaches(ctx context.Context, subtaskID string) ([]string, error) {
	var approaches []string
	err := s.attemptsLock.withRLock(ctx, func() error {
		doc, err := s.loadAttempts()
		if err != nil {
			return err
		}
		for _, a := range doc.Attempts {
			if a.SubtaskID == subtaskID && !a.Success && a.Approach != "" {
				approaches = append(approaches, a.Approach)
			}
		}
		return nil
	})
	return approaches, err
}

// AttemptCount returns how many attempts have been recorded for subtaskID.
func (s *RecoveryStore) AttemptCount(ctx context.Context, subtaskID string) (int, error) {
	count := 0
	err := s.attemptsLock.withRLock(ctx, func() error {
		doc, err := s.loadAttempts()
		if err != nil {
			return err
		}
		for _, a := range doc.Attempts {
			if a.SubtaskID == subtaskID {
				count++
			}
		}
		return nil
	})
	return count, err
}

// LastGoodCommit returns the most recently recorded good commit, or nil if
// none have been recorded yet.
func (s *RecoveryStore) LastGoodCommit(ctx context.Context) (*types.GoodCommitRecord, error) {
	var last *types.GoodCommitRecord
	err := s.goodCommitsLock.withRLock(ctx, func() error {
		doc, err := s.loadGoodCommits()
		if err != nil {
			return err
		}
		if len(doc.GoodCommits) > 0 {
			c := doc.GoodCommits[len(doc.GoodCommits)-1]
			last = &c
		}
		return nil
	})
	return last, err
}

// RecentAttempts returns the n most recent attempt records for subtaskID,
// oldest first, used by the Stall Detector's circular-approach predicate.
func (s *RecoveryStore) RecentAttempts(ctx context.Context, subtaskID string, n int) ([]types.AttemptRecord, error) {
	var recent []types.AttemptRecord
	err := s.attemptsLock.withRLock(ctx, func() error {
		doc, err := s.loadAttempts()
		if err != nil {
			return err
		}
		var matching []types.AttemptRecord
		for _, a := range doc.Attempts {
			if a.SubtaskID == subtaskID {
				matching = append(matching, a)
			}
		}
		if len(matching) > n {
			matching = matching[len(matching)-n:]
		}
		recent = matching
		return nil
	})
	return recent, err
}

// IsThrashing reports whether the threshold most recent attempts for
// subtaskID are all failures. threshold <= 0 defaults to 3.
func (s *RecoveryStore) IsThrashing(ctx context.Context, subtaskID string, threshold int) (bool, error) {
	if threshold <= 0 {
		threshold = 3
	}
	recent, err := s.RecentAttempts(ctx, subtaskID, threshold)
	if err != nil {
		return false, err
	}
	if len(recent) < threshold {
		return false, nil
	}
	for _, a := range recent {
		if a.Success {
			return false, nil
		}
	}
	return true, nil
}
