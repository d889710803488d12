package mcpserver

import (
	"context"

	"github.com/mcbridge/mcbridge/internal/index"
	"github.com/mcbridge/mcbridge/internal/tools"
	"github.com/mcbridge/mcbridge/internal/vcs"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// VCSTool exposes repository queries. Repositories are addressed either by
// path (open) or by the stable id a prior open recorded in the registry.
type VCSTool struct {
	provider vcs.Provider
	registry *vcs.Registry
	indexer  *index.Service
}

func NewVCSTool(provider vcs.Provider, registry *vcs.Registry, indexer *index.Service) *VCSTool {
	return &VCSTool{provider: provider, registry: registry, indexer: indexer}
}

func (t *VCSTool) Name() string { return "vcs" }

func (t *VCSTool) Description() string {
	return "Version control queries. Actions: open (register a repository), repos (list known " +
		"repositories), branches, files, read, history, compare, grep, impact, index_branches " +
		"(index branch contents into per-branch collections)."
}

func (t *VCSTool) Parameters() map[string]any {
	return objectSchema([]string{"action"}, map[string]any{
		"action":     prop("string", "One of: open, repos, branches, files, read, history, compare, grep, impact, index_branches"),
		"path":       prop("string", "Repository path (open) or file path inside the repository (read)"),
		"repo_id":    prop("string", "Repository id from a prior open (all actions except open/repos)"),
		"branch":     prop("string", "Branch name; defaults to the current branch"),
		"branches":   arrayProp("Branches to index; defaults to all (index_branches)"),
		"collection": prop("string", "Base collection name (index_branches)"),
		"base":       prop("string", "Base branch (compare)"),
		"head":       prop("string", "Head branch (compare)"),
		"pattern":    prop("string", "Regular expression (grep)"),
		"paths":      arrayProp("Changed file paths to analyze (impact)"),
		"depth":      prop("integer", "History depth (history, impact)"),
		"limit":      prop("integer", "Max matches returned (grep)"),
	})
}

func (t *VCSTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	switch action := argString(args, "action"); action {
	case "open":
		repo, err := t.provider.OpenRepository(ctx, argString(args, "path"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		if err := t.registry.Record(repo); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(repo)

	case "repos":
		repos, err := t.registry.List()
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"repositories": repos, "count": len(repos)})

	case "branches":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		branches, err := t.provider.ListBranches(ctx, repo)
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"branches": branches})

	case "files":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		files, err := t.provider.ListFiles(ctx, repo, argString(args, "branch"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"files": files, "count": len(files)})

	case "read":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		content, err := t.provider.ReadFile(ctx, repo, argString(args, "branch"), argString(args, "path"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.NewResult(string(content))

	case "history":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		commits, err := t.provider.CommitHistory(ctx, repo, argString(args, "branch"), argInt(args, "depth", 20))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"commits": commits, "count": len(commits)})

	case "compare":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		diff, err := t.provider.CompareBranches(ctx, repo, argString(args, "base"), argString(args, "head"))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(diff)

	case "grep":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		matches, err := t.provider.SearchBranch(ctx, repo, argString(args, "branch"), argString(args, "pattern"), argInt(args, "limit", 50))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"matches": matches, "count": len(matches)})

	case "index_branches":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		collection := argString(args, "collection")
		if collection == "" {
			return tools.ErrorResultf(xerr.InvalidArgument, "collection is required")
		}
		branches := argStrings(args, "branches")
		if len(branches) == 0 {
			all, err := t.provider.ListBranches(ctx, repo)
			if err != nil {
				return tools.ErrorResult(err)
			}
			branches = all
		}
		if err := t.indexer.IndexBranches(ctx, t.provider, repo, collection, branches); err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(map[string]any{"indexed_branches": branches})

	case "impact":
		repo, res := t.resolve(args)
		if res != nil {
			return res
		}
		report, err := t.provider.AnalyzeImpact(ctx, repo, argString(args, "branch"), argStrings(args, "paths"), argInt(args, "depth", 200))
		if err != nil {
			return tools.ErrorResult(err)
		}
		return tools.JSONResult(report)

	default:
		return tools.ErrorResultf(xerr.InvalidArgument, "unknown vcs action %q", action)
	}
}

// resolve turns a repo_id argument into a repository handle via the registry.
func (t *VCSTool) resolve(args map[string]any) (*vcs.Repository, *tools.Result) {
	id := argString(args, "repo_id")
	if id == "" {
		return nil, tools.ErrorResultf(xerr.InvalidArgument, "repo_id is required")
	}
	path, err := t.registry.Lookup(id)
	if err != nil {
		return nil, tools.ErrorResult(err)
	}
	return &vcs.Repository{ID: id, Path: path}, nil
}
