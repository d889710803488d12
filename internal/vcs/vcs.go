// Package vcs provides repository access for branch-aware indexing and the
// vcs tool surface. The git provider shells out to the git CLI; a null
// provider exists for tests and disablement.
package vcs

import (
	"context"
)

// Repository is an opened repository handle.
type Repository struct {
	// ID is stable across opens of the same repository.
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Commit is one entry of a branch's history.
type Commit struct {
	Hash      string `json:"hash"`
	Author    string `json:"author"`
	Email     string `json:"email"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// BranchDiff summarises the difference between two branches.
type BranchDiff struct {
	Base         string   `json:"base"`
	Head         string   `json:"head"`
	AheadBy      int      `json:"ahead_by"`
	BehindBy     int      `json:"behind_by"`
	ChangedFiles []string `json:"changed_files"`
}

// SearchMatch is one grep hit on a branch.
type SearchMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// ImpactReport lists files affected by changing the given paths, based on
// commit co-occurrence.
type ImpactReport struct {
	Branch        string         `json:"branch"`
	Inputs        []string       `json:"inputs"`
	AffectedFiles map[string]int `json:"affected_files"` // path -> co-change count
}

// Provider is the VCS port.
type Provider interface {
	Name() string
	OpenRepository(ctx context.Context, path string) (*Repository, error)
	ListBranches(ctx context.Context, repo *Repository) ([]string, error)
	ListFiles(ctx context.Context, repo *Repository, branch string) ([]string, error)
	ReadFile(ctx context.Context, repo *Repository, branch, path string) ([]byte, error)
	CommitHistory(ctx context.Context, repo *Repository, branch string, depth int) ([]Commit, error)
	CompareBranches(ctx context.Context, repo *Repository, base, head string) (*BranchDiff, error)
	SearchBranch(ctx context.Context, repo *Repository, branch, pattern string, limit int) ([]SearchMatch, error)
	AnalyzeImpact(ctx context.Context, repo *Repository, branch string, paths []string, depth int) (*ImpactReport, error)
}
