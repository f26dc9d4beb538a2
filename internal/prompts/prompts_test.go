package prompts

import (
	"os"
	"strings"
	"testing"

	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/types"
)

func TestGetFallsBackToEmbeddedDefault(t *testing.T) {
	content, err := Get(t.TempDir(), "coder")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(content, "build.done") {
		t.Errorf("expected embedded coder template to mention build.done, got: %s", content)
	}
}

func TestGetPrefersStateDirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	overrideDir := dir + "/prompts"
	if err := os.MkdirAll(overrideDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(overrideDir+"/coder.md", []byte("custom coder instructions"), 0o644); err != nil {
		t.Fatal(err)
	}

	content, err := Get(dir, "coder")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if content != "custom coder instructions" {
		t.Errorf("Get() = %q, want override content", content)
	}
}

func TestRendererIncludesContext(t *testing.T) {
	r := NewRenderer(t.TempDir())
	out, err := r.Render(types.RoleCoder, session.PromptContext{
		SubtaskID:        "add-auth",
		SubtaskDesc:      "wire up auth middleware",
		FailedApproaches: []string{"tried global middleware, broke health checks"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "add-auth") || !strings.Contains(out, "broke health checks") {
		t.Errorf("Render() missing context: %s", out)
	}
}
