package session

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rasen-dev/rasen/internal/types"
)

// fakeAssistant returns a fixed output string, ignoring the prompt file.
type fakeAssistant struct {
	output string
	err    error
}

func (f *fakeAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.output)), nil
}

// fakeRenderer renders a trivial fixed template.
type fakeRenderer struct{}

func (fakeRenderer) Render(role types.AgentRole, ctx PromptContext) (string, error) {
	return "render for " + string(role), nil
}

func TestRunClassifiesCoderCompletion(t *testing.T) {
	r := NewRunner(&fakeAssistant{output: `<event topic="build.done"></event>`}, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	result := r.Run(context.Background(), types.RoleCoder, PromptContext{SubtaskID: "s1"}, time.Second)
	if result.Status != types.SessionComplete {
		t.Fatalf("Status = %v, want SessionComplete", result.Status)
	}
}

func TestRunClassifiesReviewerChangesRequested(t *testing.T) {
	r := NewRunner(&fakeAssistant{output: `<event topic="review.changes_requested">fix the nil check</event>`}, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	result := r.Run(context.Background(), types.RoleReviewer, PromptContext{SubtaskID: "s1"}, time.Second)
	if result.Status != types.SessionContinue {
		t.Fatalf("Status = %v, want SessionContinue", result.Status)
	}
	feedback, ok := FindTopic(result.Events, types.TopicReviewChangesRequest)
	if !ok || feedback != "fix the nil check" {
		t.Errorf("feedback = %q, ok=%v", feedback, ok)
	}
}

func TestRunBlockedTakesPriorityOverRoleTopic(t *testing.T) {
	r := NewRunner(&fakeAssistant{output: `<event topic="build.blocked">missing API key</event>`}, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	result := r.Run(context.Background(), types.RoleCoder, PromptContext{SubtaskID: "s1"}, time.Second)
	if result.Status != types.SessionBlocked {
		t.Fatalf("Status = %v, want SessionBlocked", result.Status)
	}
}

func TestRunTimesOutOnSlowAssistant(t *testing.T) {
	slow := &blockingAssistant{unblock: make(chan struct{})}
	defer close(slow.unblock)
	r := NewRunner(slow, fakeRenderer{}, t.TempDir(), t.TempDir(), nil)
	result := r.Run(context.Background(), types.RoleCoder, PromptContext{SubtaskID: "s1"}, 10*time.Millisecond)
	if result.Status != types.SessionTimeout {
		t.Fatalf("Status = %v, want SessionTimeout", result.Status)
	}
}

// blockingAssistant blocks Execute until its context is cancelled, then
// returns an empty stream, simulating a session that overruns its
// deadline.
type blockingAssistant struct {
	unblock chan struct{}
}

func (b *blockingAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
	case <-b.unblock:
	}
	return io.NopCloser(strings.NewReader("")), nil
}
