// Package types holds the data model shared by every RASEN store and
// component: subtasks, plans, attempts, commits, memory entries, events,
// and session results.
package types

import (
	"fmt"
	"time"
)

// Subtask is an atomic unit of work in the implementation plan. Its
// identifier is chosen by the Initializer session and is immutable once
// created; only the supervisor mutates status and attempt count afterward.
type Subtask struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	Status       SubtaskStatus `json:"status"`
	Attempts     int           `json:"attempts"`
	LastApproach string        `json:"last_approach,omitempty"`
}

// Validate checks the subtask's own fields (not its position in the plan).
func (s *Subtask) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("subtask.id: field is required")
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("subtask.id=%s status: invalid value %q", s.ID, s.Status)
	}
	return nil
}

// ValidateWithDetails performs rich, field-by-field validation so a
// malformed plan handed back by a session can be returned to it as
// structured, actionable feedback instead of a bare error string.
func (s *Subtask) ValidateWithDetails(index int) *ValidationErrors {
	errs := &ValidationErrors{}
	field := fmt.Sprintf("subtasks[%d]", index)
	if s.ID == "" {
		errs.Add(field+".id", "non-empty string", "", "Provide a short, stable subtask id")
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	if !s.Status.IsValid() {
		errs.Add(
			field+".status",
			fmt.Sprintf("one of: %v", AllSubtaskStatuses()),
			s.Status,
			fmt.Sprintf("Change status to one of the valid values (not %q)", s.Status),
		)
	}
	return errs
}

// Plan is the ordered implementation plan created once by the Initializer.
// Ordering is meaningful: it is the dependency order the Initializer chose.
type Plan struct {
	Version   string    `json:"version"`
	TaskName  string    `json:"task_name"`
	Subtasks  []Subtask `json:"subtasks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the plan-level invariants: unique subtask identifiers
// and at least one subtask.
func (p *Plan) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("plan.version: field is required")
	}
	if len(p.Subtasks) == 0 {
		return fmt.Errorf("plan.subtasks: at least one subtask is required")
	}
	seen := make(map[string]bool, len(p.Subtasks))
	for i := range p.Subtasks {
		st := &p.Subtasks[i]
		if err := st.Validate(); err != nil {
			return err
		}
		if seen[st.ID] {
			return fmt.Errorf("plan.subtasks[%d]: duplicate id %q", i, st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

// ValidateWithDetails collects every field error at once instead of
// stopping at the first; PlanStore.Load returns them wrapped in its error,
// and ToPrompt can render them as a prompt-ready list.
func (p *Plan) ValidateWithDetails() *ValidationErrors {
	errs := &ValidationErrors{}
	if p.Version == "" {
		errs.Add("version", "non-empty string", "", `Provide schema version like "1.0"`)
	}
	if len(p.Subtasks) == 0 {
		errs.Add("subtasks", "at least one subtask", "[]", "Provide one or more subtasks")
	}
	seen := make(map[string]bool, len(p.Subtasks))
	for i := range p.Subtasks {
		st := &p.Subtasks[i]
		sub := st.ValidateWithDetails(i)
		errs.Errors = append(errs.Errors, sub.Errors...)
		if st.ID != "" && seen[st.ID] {
			errs.Add(fmt.Sprintf("subtasks[%d].id", i), "unique id", st.ID, "Choose an id not already used by another subtask")
		}
		seen[st.ID] = true
	}
	return errs
}

// CompletionStats returns the total subtask count and how many are
// COMPLETED.
func (p *Plan) CompletionStats() (total, completed int) {
	total = len(p.Subtasks)
	for _, s := range p.Subtasks {
		if s.Status == StatusCompleted {
			completed++
		}
	}
	return total, completed
}

// AttemptRecord is an append-only log entry describing a single session's
// outcome against a subtask.
type AttemptRecord struct {
	SubtaskID      string    `json:"subtask_id"`
	SessionOrdinal int       `json:"session_ordinal"`
	Success        bool      `json:"success"`
	Approach       string    `json:"approach,omitempty"`
	CommitID       string    `json:"commit_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// GoodCommitRecord is an append-only log entry recording a commit known to
// correspond to a successful attempt.
type GoodCommitRecord struct {
	CommitID  string    `json:"commit_id"`
	SubtaskID string    `json:"subtask_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryEntry is one append-only, human-readable cross-session note.
type MemoryEntry struct {
	ID        string     `json:"id"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Event is a single <event topic="...">payload</event> token extracted from
// assistant output.
type Event struct {
	Topic   Topic
	Payload string
}

// SessionResult is what the Session Runner hands back to the
// Post-Session Processor after one subprocess round-trip.
type SessionResult struct {
	Status     SessionStatus
	RawOutput  string
	NewCommits int
	Events     []Event
	Duration   time.Duration
	Err        error
}

// QAIteration is one round of the QA sub-loop.
type QAIteration struct {
	Ordinal   int      `json:"ordinal"`
	Approved  bool     `json:"approved"`
	Issues    []string `json:"issues,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QAHistory accumulates QA sub-loop iterations and a count per normalized
// issue string, used to detect recurring issues.
type QAHistory struct {
	Iterations []QAIteration  `json:"iterations"`
	IssueCount map[string]int `json:"issue_count"`
}

// NewQAHistory returns an empty QAHistory ready to record iterations.
func NewQAHistory() *QAHistory {
	return &QAHistory{IssueCount: make(map[string]int)}
}

// RecordIteration appends an iteration and bumps the normalized issue
// counts, returning the set of issues (if any) that have now reached
// threshold occurrences.
func (h *QAHistory) RecordIteration(iter QAIteration, threshold int) []string {
	h.Iterations = append(h.Iterations, iter)
	var recurring []string
	for _, issue := range iter.Issues {
		key := NormalizeIssue(issue)
		if key == "" {
			continue
		}
		h.IssueCount[key]++
		if h.IssueCount[key] == threshold {
			recurring = append(recurring, key)
		}
	}
	return recurring
}

// NormalizeIssue lower-cases, strips surrounding whitespace, collapses
// internal whitespace, and truncates an issue string to a fixed length so
// repeats of the same issue that differ only in case or spacing are
// recognized as identical.
func NormalizeIssue(s string) string {
	return normalizeIssue(s)
}

// StatusSnapshot is the live, readable progress snapshot written for
// external observers (status command, dashboard, CI job).
type StatusSnapshot struct {
	PID                 int       `json:"pid"`
	StartTime           time.Time `json:"start_time"`
	Iteration           int       `json:"iteration"`
	SubtaskID           string    `json:"subtask_id,omitempty"`
	SubtaskDescription  string    `json:"subtask_description,omitempty"`
	CompletedSubtasks   int       `json:"completed_subtasks"`
	TotalSubtasks        int       `json:"total_subtasks"`
	SessionStartTime    time.Time `json:"session_start_time"`
	LastActivityAt      time.Time `json:"last_activity_at"`
	CommitsThisSession  int       `json:"commits_this_session"`
	OverallStatus       string    `json:"overall_status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TerminationReason   string    `json:"termination_reason,omitempty"`
}
