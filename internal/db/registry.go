package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Entity registries: organizations, repositories, branches, worktrees.
// These back the VCS tools and give observations and sessions stable ids to
// reference.

// EnsureOrganization returns the id for an organization name, creating the
// row when missing.
func (d *DB) EnsureOrganization(ctx context.Context, id, name string, now int64) (string, error) {
	var existing string
	err := d.conn.QueryRowContext(ctx,
		`SELECT id FROM organizations WHERE name = ?`, name).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", xerr.Wrap(xerr.Database, err, "lookup organization")
	}
	if _, err := d.conn.ExecContext(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, now, now); err != nil {
		return "", xerr.Wrap(xerr.Database, err, "insert organization")
	}
	return id, nil
}

// UpsertRepository registers a repository, keyed by (org, project, name).
func (d *DB) UpsertRepository(ctx context.Context, r *Repository) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO repositories (id, org_id, project_id, name, url, local_path, vcs_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, project_id, name)
		 DO UPDATE SET url = excluded.url, local_path = excluded.local_path,
		               vcs_type = excluded.vcs_type, updated_at = excluded.updated_at`,
		r.ID, r.OrgID, r.ProjectID, r.Name, r.URL, nullStr(r.LocalPath),
		r.VCSType, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "upsert repository")
	}
	return nil
}

// GetRepository returns the repository by id, or nil when absent.
func (d *DB) GetRepository(ctx context.Context, id string) (*Repository, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, org_id, project_id, name, url, local_path, vcs_type, created_at, updated_at
		 FROM repositories WHERE id = ?`, id)
	return scanRepository(row)
}

// FindRepositoryByName looks a repository up by (project, name).
func (d *DB) FindRepositoryByName(ctx context.Context, projectID, name string) (*Repository, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, org_id, project_id, name, url, local_path, vcs_type, created_at, updated_at
		 FROM repositories WHERE project_id = ? AND name = ?`, projectID, name)
	return scanRepository(row)
}

// ListRepositories returns repositories for a project, or all when
// projectID is empty.
func (d *DB) ListRepositories(ctx context.Context, projectID string) ([]*Repository, error) {
	q := `SELECT id, org_id, project_id, name, url, local_path, vcs_type, created_at, updated_at FROM repositories`
	var args []any
	if projectID != "" {
		q += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	q += ` ORDER BY name`

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list repositories")
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertBranch records a branch head, keyed by (repo, name).
func (d *DB) UpsertBranch(ctx context.Context, b *Branch) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO branches (id, repo_id, name, head_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (repo_id, name)
		 DO UPDATE SET head_ref = excluded.head_ref, updated_at = excluded.updated_at`,
		b.ID, b.RepoID, b.Name, nullStr(b.HeadRef), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "upsert branch")
	}
	return nil
}

// ListBranches returns a repository's branches by name.
func (d *DB) ListBranches(ctx context.Context, repoID string) ([]*Branch, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, repo_id, name, head_ref, created_at, updated_at
		 FROM branches WHERE repo_id = ? ORDER BY name`, repoID)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list branches")
	}
	defer rows.Close()

	var out []*Branch
	for rows.Next() {
		var b Branch
		var head sql.NullString
		if err := rows.Scan(&b.ID, &b.RepoID, &b.Name, &head, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan branch")
		}
		b.HeadRef = head.String
		out = append(out, &b)
	}
	return out, rows.Err()
}

// UpsertWorktree records a working tree, keyed by (repo, path).
func (d *DB) UpsertWorktree(ctx context.Context, w *Worktree) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO worktrees (id, repo_id, branch, path, agent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (repo_id, path)
		 DO UPDATE SET branch = excluded.branch, agent_id = excluded.agent_id, updated_at = excluded.updated_at`,
		w.ID, w.RepoID, w.Branch, w.Path, nullStr(w.AgentID), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "upsert worktree")
	}
	return nil
}

// DeleteWorktree removes a worktree row.
func (d *DB) DeleteWorktree(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM worktrees WHERE id = ?`, id)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "delete worktree")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerr.New(xerr.NotFound, "worktree %s", id)
	}
	return nil
}

// ListWorktrees returns a repository's worktrees by path.
func (d *DB) ListWorktrees(ctx context.Context, repoID string) ([]*Worktree, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, repo_id, branch, path, agent_id, created_at, updated_at
		 FROM worktrees WHERE repo_id = ? ORDER BY path`, repoID)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list worktrees")
	}
	defer rows.Close()

	var out []*Worktree
	for rows.Next() {
		var w Worktree
		var agent sql.NullString
		if err := rows.Scan(&w.ID, &w.RepoID, &w.Branch, &w.Path, &agent, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan worktree")
		}
		w.AgentID = agent.String
		out = append(out, &w)
	}
	return out, rows.Err()
}

func scanRepository(row rowScanner) (*Repository, error) {
	var r Repository
	var localPath sql.NullString
	err := row.Scan(&r.ID, &r.OrgID, &r.ProjectID, &r.Name, &r.URL, &localPath,
		&r.VCSType, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "scan repository")
	}
	r.LocalPath = localPath.String
	return &r, nil
}

// NormalizeProjectID lowercases and trims a caller-supplied project id so
// lookups are stable across tools.
func NormalizeProjectID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
