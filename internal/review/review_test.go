package review

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/types"
)

// scriptedAssistant returns the next reviewer output on each reviewer
// prompt and a no-op completion on every coder-fix prompt in between, so
// the Review Sub-loop's Coder-fix sessions don't interfere with the
// scripted reviewer sequence.
type scriptedAssistant struct {
	outputs []string
	calls   int
}

func (s *scriptedAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	if !strings.Contains(promptPath, "prompt_reviewer") {
		return io.NopCloser(strings.NewReader(`<event topic="build.done">tests: pass, lint: pass</event>`)), nil
	}
	out := s.outputs[s.calls]
	if s.calls < len(s.outputs)-1 {
		s.calls++
	}
	return io.NopCloser(strings.NewReader(out)), nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(role types.AgentRole, ctx session.PromptContext) (string, error) {
	return "prompt", nil
}

type fakeVCS struct {
	commitsSince int
}

func (f *fakeVCS) Head(ctx context.Context) (string, error) { return "abc123", nil }
func (f *fakeVCS) CommitsSince(ctx context.Context, head string) (int, error) {
	return f.commitsSince, nil
}

func TestRunApprovesOnFirstLoop(t *testing.T) {
	assistant := &scriptedAssistant{outputs: []string{`<event topic="review.approved"></event>`}}
	sessions := session.NewRunner(assistant, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	r := NewRunner(sessions, &fakeVCS{}, nil)

	outcome := r.Run(context.Background(), Config{MaxLoops: 3, SessionTimeout: time.Second}, session.PromptContext{SubtaskID: "s1"})
	if !outcome.Approved || outcome.Loops != 1 {
		t.Fatalf("outcome = %+v, want approved after 1 loop", outcome)
	}
}

func TestRunRevertsAfterExhaustingMaxLoops(t *testing.T) {
	assistant := &scriptedAssistant{outputs: []string{
		`<event topic="review.changes_requested">fix a</event>`,
		`<event topic="review.changes_requested">fix b</event>`,
	}}
	sessions := session.NewRunner(assistant, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	r := NewRunner(sessions, &fakeVCS{}, nil)

	outcome := r.Run(context.Background(), Config{MaxLoops: 2, SessionTimeout: time.Second}, session.PromptContext{SubtaskID: "s1"})
	if outcome.Approved {
		t.Fatalf("outcome.Approved = true, want false after exhausting max loops")
	}
	if outcome.Loops != 2 {
		t.Errorf("Loops = %d, want 2", outcome.Loops)
	}
	if outcome.Feedback != "fix b" {
		t.Errorf("Feedback = %q, want last rejection's feedback", outcome.Feedback)
	}
}
