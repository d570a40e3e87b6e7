package vcs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Git is a VersionControlPort backed by the git CLI.
type Git struct {
	dir    string
	logger *slog.Logger
}

// NewGit creates a git port rooted at dir.
func NewGit(dir string, logger *slog.Logger) *Git {
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{dir: dir, logger: logger}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommitAll stages all changes and commits. A clean tree returns an
// empty result without error.
func (g *Git) CommitAll(ctx context.Context, message string) (CommitResult, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return CommitResult{}, err
	}

	status, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return CommitResult{}, err
	}
	if status == "" {
		return CommitResult{}, nil
	}

	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return CommitResult{}, err
	}

	sha, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, err
	}

	files, err := g.ChangedFiles(ctx, sha)
	if err != nil {
		g.logger.Warn("failed to count changed files", "sha", sha, "error", err)
	}

	return CommitResult{SHA: sha, FilesChanged: len(files)}, nil
}

// ChangedFiles lists the files touched by a commit.
func (g *Git) ChangedFiles(ctx context.Context, sha string) ([]string, error) {
	out, err := g.run(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", sha)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// OpenPR is not supported by the plain git port.
func (g *Git) OpenPR(ctx context.Context, title, body string) (string, error) {
	return "", fmt.Errorf("pull requests are not supported by the git port")
}
