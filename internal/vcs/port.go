// Package vcs defines the version-control and CI ports invoked by
// terminal phases. The engine only records outcomes (commit SHA, changed
// file counts); repository mechanics live behind these interfaces.
package vcs

import "context"

// CommitResult describes a checkpoint commit.
type CommitResult struct {
	SHA string
	// FilesChanged is the number of files the commit touched. Zero is
	// flagged by the orchestrator: a zero-diff completion is evidence the
	// phase did no real work.
	FilesChanged int
}

// VersionControlPort is the commit/PR capability used between phases.
type VersionControlPort interface {
	// CommitAll stages everything and commits with the given message.
	// Returns the commit SHA and how many files changed. A clean tree is
	// not an error: the result carries FilesChanged == 0 and an empty SHA.
	CommitAll(ctx context.Context, message string) (CommitResult, error)

	// ChangedFiles lists files touched by a commit.
	ChangedFiles(ctx context.Context, sha string) ([]string, error)

	// OpenPR opens a pull request for the current branch.
	OpenPR(ctx context.Context, title, body string) (url string, err error)
}

// CIPort reports pipeline status for a commit.
type CIPort interface {
	// Status returns the CI conclusion for a commit: "pending",
	// "success" or "failure".
	Status(ctx context.Context, sha string) (string, error)
}
