package vcs

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Resolve builds the VCS provider named in cfg.
func Resolve(cfg config.VCSConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "git":
		return NewGitProvider(), nil
	case "null":
		return NullProvider{}, nil
	default:
		return nil, xerr.New(xerr.Configuration,
			"unknown vcs provider %q, known: [git null]", cfg.Provider)
	}
}

// NullProvider satisfies the port with empty results.
type NullProvider struct{}

func (NullProvider) Name() string { return "null" }

func (NullProvider) OpenRepository(_ context.Context, path string) (*Repository, error) {
	return &Repository{ID: ids.RepositoryFromName(path).String(), Path: path}, nil
}

func (NullProvider) ListBranches(context.Context, *Repository) ([]string, error) {
	return nil, nil
}

func (NullProvider) ListFiles(context.Context, *Repository, string) ([]string, error) {
	return nil, nil
}

func (NullProvider) ReadFile(_ context.Context, _ *Repository, branch, path string) ([]byte, error) {
	return nil, xerr.New(xerr.NotFound, "file %s on branch %s", path, branch)
}

func (NullProvider) CommitHistory(context.Context, *Repository, string, int) ([]Commit, error) {
	return nil, nil
}

func (NullProvider) CompareBranches(_ context.Context, _ *Repository, base, head string) (*BranchDiff, error) {
	return &BranchDiff{Base: base, Head: head}, nil
}

func (NullProvider) SearchBranch(context.Context, *Repository, string, string, int) ([]SearchMatch, error) {
	return nil, nil
}

func (NullProvider) AnalyzeImpact(_ context.Context, _ *Repository, branch string, paths []string, _ int) (*ImpactReport, error) {
	return &ImpactReport{Branch: branch, Inputs: paths, AffectedFiles: map[string]int{}}, nil
}
