package vcs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// gitProvider drives the git CLI. It requires git on PATH; OpenRepository
// fails with an infrastructure error when it is missing.
type gitProvider struct{}

// NewGitProvider returns the git CLI provider.
func NewGitProvider() Provider { return gitProvider{} }

func (gitProvider) Name() string { return "git" }

func (g gitProvider) OpenRepository(ctx context.Context, path string) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, xerr.Wrap(xerr.InvalidArgument, err, "resolve repository path %s", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, xerr.Wrap(xerr.NotFound, err, "repository path %s", abs)
	}

	out, err := g.run(ctx, abs, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	root := strings.TrimSpace(out)

	// First-commit hash when available, else the canonical root path.
	// Either way the id is stable across opens.
	seed := root
	if first, err := g.run(ctx, root, "rev-list", "--max-parents=0", "--max-count=1", "HEAD"); err == nil {
		if h := strings.TrimSpace(first); h != "" {
			seed = h
		}
	}
	id := ids.RepositoryFromName(seed)
	return &Repository{ID: id.String(), Path: root}, nil
}

func (g gitProvider) ListBranches(ctx context.Context, repo *Repository) ([]string, error) {
	out, err := g.run(ctx, repo.Path, "for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (g gitProvider) ListFiles(ctx context.Context, repo *Repository, branch string) ([]string, error) {
	out, err := g.run(ctx, repo.Path, "ls-tree", "-r", "--name-only", branch)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

func (g gitProvider) ReadFile(ctx context.Context, repo *Repository, branch, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repo.Path, "show", branch+":"+path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "does not exist") ||
			strings.Contains(stderr.String(), "exists on disk, but not in") {
			return nil, xerr.New(xerr.NotFound, "file %s on branch %s", path, branch)
		}
		return nil, xerr.Wrap(xerr.IO, err, "git show %s:%s: %s", branch, path, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (g gitProvider) CommitHistory(ctx context.Context, repo *Repository, branch string, depth int) ([]Commit, error) {
	if depth <= 0 {
		depth = 50
	}
	out, err := g.run(ctx, repo.Path, "log", branch,
		"--max-count="+strconv.Itoa(depth), "--format=%H%x1f%an%x1f%ae%x1f%at%x1f%s")
	if err != nil {
		return nil, err
	}

	var commits []Commit
	for _, line := range splitLines(out) {
		parts := strings.SplitN(line, "\x1f", 5)
		if len(parts) != 5 {
			continue
		}
		ts, _ := strconv.ParseInt(parts[3], 10, 64)
		commits = append(commits, Commit{
			Hash: parts[0], Author: parts[1], Email: parts[2],
			Timestamp: ts, Message: parts[4],
		})
	}
	return commits, nil
}

func (g gitProvider) CompareBranches(ctx context.Context, repo *Repository, base, head string) (*BranchDiff, error) {
	counts, err := g.run(ctx, repo.Path, "rev-list", "--left-right", "--count", base+"..."+head)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(strings.TrimSpace(counts))
	if len(fields) != 2 {
		return nil, xerr.New(xerr.Internal, "unexpected rev-list output %q", counts)
	}
	behind, _ := strconv.Atoi(fields[0])
	ahead, _ := strconv.Atoi(fields[1])

	files, err := g.run(ctx, repo.Path, "diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, err
	}
	return &BranchDiff{
		Base: base, Head: head,
		AheadBy: ahead, BehindBy: behind,
		ChangedFiles: splitLines(files),
	}, nil
}

func (g gitProvider) SearchBranch(ctx context.Context, repo *Repository, branch, pattern string, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 100
	}
	cmd := exec.CommandContext(ctx, "git", "-C", repo.Path,
		"grep", "-n", "--no-color", "-e", pattern, branch)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Exit code 1 means no matches.
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 && stderr.Len() == 0 {
			return nil, nil
		}
		return nil, xerr.Wrap(xerr.IO, err, "git grep: %s", strings.TrimSpace(stderr.String()))
	}

	var matches []SearchMatch
	for _, line := range splitLines(stdout.String()) {
		// branch:path:line:content
		rest, ok := strings.CutPrefix(line, branch+":")
		if !ok {
			continue
		}
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) != 3 {
			continue
		}
		n, _ := strconv.Atoi(parts[1])
		matches = append(matches, SearchMatch{Path: parts[0], Line: n, Content: parts[2]})
		if len(matches) >= limit {
			break
		}
	}
	return matches, nil
}

func (g gitProvider) AnalyzeImpact(ctx context.Context, repo *Repository, branch string, paths []string, depth int) (*ImpactReport, error) {
	if depth <= 0 {
		depth = 200
	}
	inputs := make(map[string]bool, len(paths))
	for _, p := range paths {
		inputs[p] = true
	}

	args := append([]string{"log", branch, "--max-count=" + strconv.Itoa(depth),
		"--name-only", "--format=%x1e"}, "--")
	args = append(args, paths...)
	out, err := g.run(ctx, repo.Path, args...)
	if err != nil {
		return nil, err
	}

	affected := make(map[string]int)
	for _, commit := range strings.Split(out, "\x1e") {
		for _, file := range splitLines(commit) {
			if !inputs[file] {
				affected[file]++
			}
		}
	}
	return &ImpactReport{Branch: branch, Inputs: paths, AffectedFiles: affected}, nil
}

func (gitProvider) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "not a git repository") {
			return "", xerr.New(xerr.InvalidArgument, "%s is not a git repository", dir)
		}
		return "", xerr.Wrap(xerr.IO, err, "git %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			out = append(out, line)
		}
	}
	return out
}
