// Package prompts resolves and renders the four agent-role prompt
// templates: state-directory override first, else the bundled default,
// with @-reference inlining for shared boilerplate.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rasen-dev/rasen/internal/session"
	"github.com/rasen-dev/rasen/internal/types"
)

//go:embed templates/*
var embeddedPrompts embed.FS

var atRefPattern = regexp.MustCompile(`(?m)^@([^\s]+\.md)\s*$`)

// processAtReferences resolves @path/to/file.md references, inlining the
// referenced file's content; a visited set guards against circular
// references.
func processAtReferences(content, basePath string, visited map[string]bool) string {
	if visited == nil {
		visited = make(map[string]bool)
	}
	return atRefPattern.ReplaceAllStringFunc(content, func(match string) string {
		refPath := strings.TrimPrefix(strings.TrimSpace(match), "@")
		if visited[refPath] {
			return fmt.Sprintf("<!-- CIRCULAR REFERENCE: %s -->", refPath)
		}
		visited[refPath] = true

		var refContent string
		if basePath != "" {
			if data, err := os.ReadFile(filepath.Join(basePath, refPath)); err == nil {
				refContent = string(data)
			}
		}
		if refContent == "" {
			data, err := embeddedPrompts.ReadFile("templates/" + refPath)
			if err != nil {
				return fmt.Sprintf("<!-- REFERENCE NOT FOUND: %s -->", refPath)
			}
			refContent = string(data)
		}
		return processAtReferences(refContent, basePath, visited)
	})
}

// Get returns a template's base content: state directory override if
// present, else the bundled embedded default.
func Get(stateDir, name string) (string, error) {
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}

	var content, basePath string
	localPath := filepath.Join(stateDir, "prompts", name)
	if data, err := os.ReadFile(localPath); err == nil {
		content = string(data)
		basePath = filepath.Join(stateDir, "prompts")
	}
	if content == "" {
		data, err := embeddedPrompts.ReadFile("templates/" + name)
		if err != nil {
			return "", fmt.Errorf("prompt %s not found in state directory or embedded defaults: %w", name, err)
		}
		content = string(data)
	}
	return processAtReferences(content, basePath, nil), nil
}

// Renderer implements session.Renderer over the embedded/state-directory
// templates, appending the current run's context the same way the
// the orchestrator appends a plan-context block to the base prompt: base
// template text, then a plain fmt.Sprintf'd context block.
type Renderer struct {
	StateDir string
}

// NewRenderer returns a Renderer rooted at stateDir.
func NewRenderer(stateDir string) *Renderer {
	return &Renderer{StateDir: stateDir}
}

// Render implements session.Renderer.
func (r *Renderer) Render(role types.AgentRole, ctx session.PromptContext) (string, error) {
	base, err := Get(r.StateDir, string(role))
	if err != nil {
		return "", err
	}
	return base + "\n\n" + buildContextBlock(ctx), nil
}

func buildContextBlock(ctx session.PromptContext) string {
	var sb strings.Builder
	sb.WriteString("---\n\n## Current Context\n\n")
	if ctx.TaskName != "" {
		sb.WriteString(fmt.Sprintf("Task: %s\n\n", ctx.TaskName))
	}
	if ctx.SubtaskID != "" {
		sb.WriteString(fmt.Sprintf("Subtask: %s — %s\n\n", ctx.SubtaskID, ctx.SubtaskDesc))
	}
	if len(ctx.FailedApproaches) > 0 {
		sb.WriteString("Approaches already tried and rejected, do not repeat them:\n\n")
		for _, a := range ctx.FailedApproaches {
			sb.WriteString(fmt.Sprintf("- %s\n", a))
		}
		sb.WriteString("\n")
	}
	if ctx.Feedback != "" {
		sb.WriteString(fmt.Sprintf("Feedback from the previous review/QA pass, address it before anything else:\n\n%s\n\n", ctx.Feedback))
	}
	if ctx.MemoryExcerpt != "" {
		sb.WriteString(fmt.Sprintf("Relevant notes from earlier sessions:\n\n%s\n", ctx.MemoryExcerpt))
	}
	return sb.String()
}
