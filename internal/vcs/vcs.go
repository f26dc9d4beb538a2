// Package vcs implements the VCS Gateway: a narrow wrapper around
// version-control queries and worktree creation. Every operation is a
// single git subprocess invocation that either succeeds with
// machine-parseable output or fails with a specific error.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Gateway wraps a git working directory.
type Gateway struct {
	dir string
}

// New returns a Gateway rooted at dir (the project's working copy).
func New(dir string) *Gateway {
	return &Gateway{dir: dir}
}

func (g *Gateway) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Head returns the current commit identifier (HEAD).
func (g *Gateway) Head(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// CommitsSince returns the number of commits made since head (exclusive) up
// to the current HEAD (inclusive). head may be empty, meaning "the
// beginning of history".
func (g *Gateway) CommitsSince(ctx context.Context, head string) (int, error) {
	rangeSpec := "HEAD"
	if head != "" {
		rangeSpec = head + "..HEAD"
	}
	out, err := g.run(ctx, "rev-list", "--count", rangeSpec)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("cannot parse commit count %q: %w", out, err)
	}
	return n, nil
}

// CurrentBranch returns the name of the currently checked-out branch.
func (g *Gateway) CurrentBranch(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranch creates (but does not check out) a new branch at HEAD.
func (g *Gateway) CreateBranch(ctx context.Context, name string) error {
	_, err := g.run(ctx, "branch", name)
	return err
}

// CheckoutBranch checks out an existing branch.
func (g *Gateway) CheckoutBranch(ctx context.Context, name string) error {
	_, err := g.run(ctx, "checkout", name)
	return err
}

// CreateWorktree adds a worktree at path on a new branch, for isolating an
// Initializer or a per-task run from the main working copy.
func (g *Gateway) CreateWorktree(ctx context.Context, path, branch string) error {
	_, err := g.run(ctx, "worktree", "add", "-b", branch, path)
	return err
}

// RemoveWorktree removes a worktree previously created at path.
func (g *Gateway) RemoveWorktree(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", path)
	return err
}

// MergeBranch merges source into the currently checked-out branch, used by
// the optional `rasen merge` command to fold a worktree branch back in.
func (g *Gateway) MergeBranch(ctx context.Context, source string) error {
	_, err := g.run(ctx, "merge", "--no-edit", source)
	return err
}
