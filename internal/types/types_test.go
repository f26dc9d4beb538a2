package types

import (
	"strings"
	"testing"
	"time"
)

func TestSubtaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		subtask Subtask
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid subtask",
			subtask: Subtask{ID: "add-auth", Description: "Add auth middleware", Status: StatusPending},
			wantErr: false,
		},
		{
			name:    "missing id",
			subtask: Subtask{ID: "", Status: StatusPending},
			wantErr: true,
			errMsg:  "subtask.id: field is required",
		},
		{
			name:    "invalid status",
			subtask: Subtask{ID: "add-auth", Status: SubtaskStatus("bogus")},
			wantErr: true,
			errMsg:  "status: invalid value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.subtask.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestPlanValidate(t *testing.T) {
	validSubtask := Subtask{ID: "s1", Description: "do a thing", Status: StatusPending}

	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid plan",
			plan:    Plan{Version: "1.0", TaskName: "ship feature", Subtasks: []Subtask{validSubtask}, CreatedAt: time.Now()},
			wantErr: false,
		},
		{
			name:    "missing version",
			plan:    Plan{Version: "", Subtasks: []Subtask{validSubtask}},
			wantErr: true,
			errMsg:  "plan.version: field is required",
		},
		{
			name:    "no subtasks",
			plan:    Plan{Version: "1.0", Subtasks: nil},
			wantErr: true,
			errMsg:  "plan.subtasks: at least one subtask is required",
		},
		{
			name: "duplicate subtask id",
			plan: Plan{
				Version: "1.0",
				Subtasks: []Subtask{
					{ID: "dup", Status: StatusPending},
					{ID: "dup", Status: StatusPending},
				},
			},
			wantErr: true,
			errMsg:  `duplicate id "dup"`,
		},
		{
			name: "invalid subtask in plan",
			plan: Plan{
				Version:  "1.0",
				Subtasks: []Subtask{{ID: "", Status: StatusPending}},
			},
			wantErr: true,
			errMsg:  "subtask.id: field is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestPlanValidateWithDetailsReportsEveryError(t *testing.T) {
	plan := Plan{
		Subtasks: []Subtask{
			{ID: "", Status: "bogus"},
			{ID: "ok", Status: StatusPending},
		},
	}

	errs := plan.ValidateWithDetails()
	if !errs.HasErrors() {
		t.Fatal("expected validation errors")
	}
	// missing version, missing subtask id, and bad status should all surface
	// at once rather than stopping at the first problem.
	if len(errs.Errors) < 3 {
		t.Errorf("ValidateWithDetails() returned %d errors, want at least 3: %+v", len(errs.Errors), errs.Errors)
	}
	prompt := errs.ToPrompt()
	if !strings.Contains(prompt, "Validation failed") {
		t.Errorf("ToPrompt() = %q, want a validation-failed header", prompt)
	}
}

func TestPlanCompletionStats(t *testing.T) {
	plan := Plan{
		Subtasks: []Subtask{
			{ID: "a", Status: StatusCompleted},
			{ID: "b", Status: StatusPending},
			{ID: "c", Status: StatusCompleted},
		},
	}
	total, completed := plan.CompletionStats()
	if total != 3 || completed != 2 {
		t.Errorf("CompletionStats() = (%d, %d), want (3, 2)", total, completed)
	}
}

func TestQAHistoryRecordIterationDetectsRecurringIssues(t *testing.T) {
	h := NewQAHistory()
	threshold := 3
	issue := "Error handling swallows the underlying cause"

	var recurring []string
	for i := 1; i <= 3; i++ {
		recurring = h.RecordIteration(QAIteration{
			Ordinal:  i,
			Approved: false,
			Issues:   []string{issue},
		}, threshold)
	}

	if len(recurring) != 1 {
		t.Fatalf("expected exactly one recurring issue on the 3rd occurrence, got %v", recurring)
	}
	if recurring[0] != NormalizeIssue(issue) {
		t.Errorf("recurring issue = %q, want %q", recurring[0], NormalizeIssue(issue))
	}
	if len(h.Iterations) != 3 {
		t.Errorf("Iterations len = %d, want 3", len(h.Iterations))
	}
}

func TestNormalizeIssueCollapsesCaseAndWhitespace(t *testing.T) {
	a := NormalizeIssue("  Missing   nil check on   the response body  ")
	b := NormalizeIssue("missing nil check on the response body")
	if a != b {
		t.Errorf("NormalizeIssue() not idempotent under whitespace/case: %q != %q", a, b)
	}
}

func TestParseTopicFallsBackToOther(t *testing.T) {
	if got := ParseTopic("build.done"); got != TopicBuildDone {
		t.Errorf("ParseTopic(build.done) = %q, want %q", got, TopicBuildDone)
	}
	if got := ParseTopic("something.unrecognized"); got != TopicOther {
		t.Errorf("ParseTopic(unrecognized) = %q, want %q", got, TopicOther)
	}
}
