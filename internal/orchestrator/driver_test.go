package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rasen-dev/rasen/internal/config"
	"github.com/rasen-dev/rasen/internal/memory"
	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/store"
	"github.com/rasen-dev/rasen/internal/types"
)

// scriptedAssistant dispatches a fixed reply per role, inferred from the
// prompt file name session.Runner writes (prompt_<role>[_<subtask>].md).
type scriptedAssistant struct {
	mu        sync.Mutex
	byRole    map[types.AgentRole]string
	coderCall int
}

func (s *scriptedAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for role, out := range s.byRole {
		if strings.Contains(promptPath, "prompt_"+string(role)) {
			return io.NopCloser(strings.NewReader(out)), nil
		}
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// fakeVCS simulates a repository where every Coder session adds one commit.
type fakeVCS struct {
	mu     sync.Mutex
	head   int
	commit func(*fakeVCS)
}

func (f *fakeVCS) Head(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strconv.Itoa(f.head), nil
}

func (f *fakeVCS) CommitsSince(ctx context.Context, head string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before, _ := strconv.Atoi(head)
	return f.head - before, nil
}

func (f *fakeVCS) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
}

func newTestDriver(t *testing.T, assistant session.Assistant, vcsGateway VCS) *Driver {
	t.Helper()
	dir := t.TempDir()
	renderer := testRenderer{}
	sessions := session.NewRunner(assistant, renderer, dir, dir, nil)

	cfg := config.DefaultConfig()
	cfg.Orchestrator.SessionDelaySeconds = 0
	cfg.Orchestrator.SessionTimeoutSeconds = 5
	cfg.Review.Enabled = false
	cfg.QA.Enabled = false

	return &Driver{
		TaskName: "demo task",
		Plan:     store.NewPlanStore(dir + "/implementation_plan.json"),
		Recovery: store.NewRecoveryStore(dir),
		Status:   store.NewStatusStore(dir + "/status.json"),
		Memory:   memory.New(dir + "/memories.md"),
		Sessions: sessions,
		VCS:      vcsGateway,
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Shutdown: make(chan struct{}),
	}
}

type testRenderer struct{}

func (testRenderer) Render(role types.AgentRole, ctx session.PromptContext) (string, error) {
	return "prompt for " + string(role), nil
}

// commitingAssistant advances the fake VCS on every Coder call so each completed
// subtask gets exactly one new commit.
type commitingAssistant struct {
	scriptedAssistant
	vcs *fakeVCS
}

func (c *commitingAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	if strings.Contains(promptPath, "prompt_coder") {
		c.vcs.Advance()
	}
	return c.scriptedAssistant.Execute(ctx, workDir, promptPath)
}

func TestRunHappyPathThreeSubtasks(t *testing.T) {
	vcsGateway := &fakeVCS{}
	assistant := &commitingAssistant{
		scriptedAssistant: scriptedAssistant{byRole: map[types.AgentRole]string{
			types.RoleCoder: `<event topic="build.done">tests: pass, lint: pass</event>`,
		}},
		vcs: vcsGateway,
	}
	d := newTestDriver(t, assistant, vcsGateway)

	plan, err := d.Plan.Create(context.Background(), "demo task", []types.Subtask{
		{ID: "a", Description: "first", Status: types.StatusPending},
		{ID: "b", Description: "second", Status: types.StatusPending},
		{ID: "c", Description: "third", Status: types.StatusPending},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_ = plan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := d.Run(ctx, RunFlags{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Reason != types.ReasonComplete {
		t.Fatalf("Reason = %v, want complete", result.Reason)
	}
	if result.SubtasksCompleted != 3 {
		t.Fatalf("SubtasksCompleted = %d, want 3", result.SubtasksCompleted)
	}
}

func TestRunBackpressureRejectionThenRecovery(t *testing.T) {
	vcsGateway := &fakeVCS{}
	calls := 0
	assistant := &roleSequenceAssistant{
		vcs: vcsGateway,
		coderOutputs: []string{
			`<event topic="build.done">tests: pass</event>`,
			`<event topic="build.done">tests: pass, lint: pass</event>`,
		},
		onCoderCall: func() { calls++ },
	}
	cfgOverride := func(d *Driver) { d.Config.Backpressure.RequireLint = true }
	d := newTestDriver(t, assistant, vcsGateway)
	cfgOverride(d)

	_, err := d.Plan.Create(context.Background(), "demo", []types.Subtask{
		{ID: "a", Description: "only", Status: types.StatusPending},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := d.Run(ctx, RunFlags{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Reason != types.ReasonComplete {
		t.Fatalf("Reason = %v, want complete after recovery", result.Reason)
	}
	if calls < 2 {
		t.Fatalf("coder called %d times, want at least 2 (reject then accept)", calls)
	}
}

// roleSequenceAssistant returns successive scripted coder outputs and
// advances the fake VCS on every Coder call, so the first (lint-less)
// output also carries a commit and is rejected by backpressure alone.
type roleSequenceAssistant struct {
	mu           sync.Mutex
	vcs          *fakeVCS
	coderOutputs []string
	coderIndex   int
	onCoderCall  func()
}

func (r *roleSequenceAssistant) Execute(ctx context.Context, workDir, promptPath string) (io.ReadCloser, error) {
	if !strings.Contains(promptPath, "prompt_coder") {
		return io.NopCloser(strings.NewReader("")), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onCoderCall != nil {
		r.onCoderCall()
	}
	out := r.coderOutputs[r.coderIndex]
	if r.coderIndex < len(r.coderOutputs)-1 {
		r.coderIndex++
	}
	r.vcs.Advance()
	return io.NopCloser(strings.NewReader(out)), nil
}
