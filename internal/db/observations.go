package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// MemoryFilter narrows observation queries. Present fields AND together.
type MemoryFilter struct {
	ProjectID string
	Type      ObservationType
	Tags      []string
	SessionID string
	RepoID    string
	Branch    string
	Commit    string
	Since     int64 // inclusive, 0 = unbounded
	Until     int64 // inclusive, 0 = unbounded
}

// Matches reports whether the observation satisfies every present field.
func (f *MemoryFilter) Matches(obs *Observation) bool {
	if f == nil {
		return true
	}
	if f.ProjectID != "" && obs.ProjectID != f.ProjectID {
		return false
	}
	if f.Type != "" && obs.Type != f.Type {
		return false
	}
	if f.SessionID != "" && obs.Metadata.SessionID != f.SessionID {
		return false
	}
	if f.RepoID != "" && obs.Metadata.RepoID != f.RepoID {
		return false
	}
	if f.Branch != "" && obs.Metadata.Branch != f.Branch {
		return false
	}
	if f.Commit != "" && obs.Metadata.Commit != f.Commit {
		return false
	}
	if f.Since != 0 && obs.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && obs.CreatedAt > f.Until {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range obs.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

const obsColumns = `id, project_id, content, content_hash, type, tags_json, metadata_json, created_at, embedding_id`

// InsertObservation writes a new observation and its FTS row in one
// transaction. The (project_id, content_hash) unique constraint surfaces as
// a Conflict error; callers treat that as a benign dedup race.
func (d *DB) InsertObservation(ctx context.Context, obs *Observation) error {
	tags, err := json.Marshal(obs.Tags)
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "marshal tags")
	}
	meta, err := json.Marshal(obs.Metadata)
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "marshal metadata")
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "begin insert observation")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO observations (`+obsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.ProjectID, obs.Content, obs.ContentHash, string(obs.Type),
		string(tags), string(meta), obs.CreatedAt, nullStr(obs.EmbeddingID),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return xerr.Wrap(xerr.Conflict, err, "observation exists for (project, content_hash)")
		}
		return xerr.Wrap(xerr.Database, err, "insert observation")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO observations_fts (content, id, project_id) VALUES (?, ?, ?)`,
		obs.Content, obs.ID, obs.ProjectID,
	); err != nil {
		return xerr.Wrap(xerr.Database, err, "index observation")
	}

	if err := tx.Commit(); err != nil {
		return xerr.Wrap(xerr.Database, err, "commit insert observation")
	}
	return nil
}

// FindObservationByHash returns the active observation for
// (project, content_hash), or nil when none exists.
func (d *DB) FindObservationByHash(ctx context.Context, projectID, contentHash string) (*Observation, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+obsColumns+` FROM observations
		 WHERE project_id = ? AND content_hash = ? AND deleted = 0`,
		projectID, contentHash,
	)
	return scanObservation(row)
}

// GetObservation returns the observation by id, or nil when absent.
func (d *DB) GetObservation(ctx context.Context, id string) (*Observation, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT `+obsColumns+` FROM observations WHERE id = ? AND deleted = 0`, id,
	)
	return scanObservation(row)
}

// GetObservationsByIDs returns the observations for the given ids, in no
// particular order. Missing ids are silently omitted.
func (d *DB) GetObservationsByIDs(ctx context.Context, idList []string) ([]*Observation, error) {
	if len(idList) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(idList))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(idList))
	for i, id := range idList {
		args[i] = id
	}

	rows, err := d.conn.QueryContext(ctx,
		`SELECT `+obsColumns+` FROM observations WHERE id IN (`+placeholders+`) AND deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "get observations by ids")
	}
	defer rows.Close()
	return scanObservations(rows)
}

// DeleteObservation logically deletes an observation and drops its FTS row.
func (d *DB) DeleteObservation(ctx context.Context, id string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "begin delete observation")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE observations SET deleted = 1 WHERE id = ?`, id); err != nil {
		return xerr.Wrap(xerr.Database, err, "delete observation")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM observations_fts WHERE id = ?`, id); err != nil {
		return xerr.Wrap(xerr.Database, err, "deindex observation")
	}
	if err := tx.Commit(); err != nil {
		return xerr.Wrap(xerr.Database, err, "commit delete observation")
	}
	return nil
}

// FTSHit is a ranked full-text match.
type FTSHit struct {
	ID   string
	Rank float64 // bm25 rank, lower is better
}

// SearchObservationsFTS runs an FTS5 match scoped to a project (optional)
// and returns ranked observation ids.
func (d *DB) SearchObservationsFTS(ctx context.Context, query, projectID string, limit int) ([]FTSHit, error) {
	match := ftsQuote(query)
	if match == "" {
		return nil, nil
	}

	q := `SELECT id, bm25(observations_fts) FROM observations_fts WHERE observations_fts MATCH ?`
	args := []any{match}
	if projectID != "" {
		q += ` AND project_id = ?`
		args = append(args, projectID)
	}
	q += ` ORDER BY bm25(observations_fts) LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "fts search")
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.ID, &h.Rank); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan fts hit")
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ListObservations returns filter-matching observations ordered by
// created_at descending, capped at limit.
func (d *DB) ListObservations(ctx context.Context, filter *MemoryFilter, limit int) ([]*Observation, error) {
	where, args := filterClauses(filter)
	q := `SELECT ` + obsColumns + ` FROM observations WHERE deleted = 0` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list observations")
	}
	defer rows.Close()

	obs, err := scanObservations(rows)
	if err != nil {
		return nil, err
	}
	// Tag and metadata predicates that SQL cannot express cheaply.
	return filterInMemory(obs, filter), nil
}

// Timeline returns up to before observations at or preceding the anchor and
// up to after observations at or following it, anchor included, ascending
// by created_at with ties broken by id.
func (d *DB) Timeline(ctx context.Context, anchorID string, before, after int, filter *MemoryFilter) ([]*Observation, error) {
	anchor, err := d.GetObservation(ctx, anchorID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, xerr.New(xerr.NotFound, "observation %s", anchorID)
	}

	backward, err := d.timelineScan(ctx, anchor, before, filter, true)
	if err != nil {
		return nil, err
	}
	forward, err := d.timelineScan(ctx, anchor, after, filter, false)
	if err != nil {
		return nil, err
	}

	// backward is newest-first; reverse into ascending order.
	result := make([]*Observation, 0, len(backward)+1+len(forward))
	for i := len(backward) - 1; i >= 0; i-- {
		result = append(result, backward[i])
	}
	result = append(result, anchor)
	result = append(result, forward...)
	return result, nil
}

// timelineScan collects up to want filter-matching rows strictly before
// (backward) or after the anchor in (created_at, id) order. Tag and metadata
// predicates live outside SQL, so a fixed LIMIT could return a short window
// when rows near the anchor do not match; the scan pages on a keyset cursor
// until enough matches are found or the table is exhausted.
func (d *DB) timelineScan(ctx context.Context, anchor *Observation, want int, filter *MemoryFilter, backward bool) ([]*Observation, error) {
	if want <= 0 {
		return nil, nil
	}
	where, filterArgs := filterClauses(filter)
	cmp := ` AND (created_at > ? OR (created_at = ? AND id > ?)) ORDER BY created_at ASC, id ASC LIMIT ?`
	if backward {
		cmp = ` AND (created_at < ? OR (created_at = ? AND id < ?)) ORDER BY created_at DESC, id DESC LIMIT ?`
	}
	q := `SELECT ` + obsColumns + ` FROM observations WHERE deleted = 0` + where + cmp

	cursor := anchor
	batch := want
	var matched []*Observation
	for len(matched) < want {
		args := append(append([]any{}, filterArgs...), cursor.CreatedAt, cursor.CreatedAt, cursor.ID, batch)
		rows, err := d.conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "timeline scan")
		}
		page, err := scanObservations(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		cursor = page[len(page)-1]
		for _, o := range page {
			if filter.Matches(o) {
				matched = append(matched, o)
				if len(matched) == want {
					break
				}
			}
		}
		if len(page) < batch {
			break
		}
		if batch < 1024 {
			batch *= 2
		}
	}
	return matched, nil
}

// StoreSessionSummary persists a compiled session summary.
func (d *DB) StoreSessionSummary(ctx context.Context, s *SessionSummary) error {
	topics, _ := json.Marshal(s.Topics)
	decisions, _ := json.Marshal(s.Decisions)
	nextSteps, _ := json.Marshal(s.NextSteps)
	keyFiles, _ := json.Marshal(s.KeyFiles)
	var origin any
	if s.Origin != nil {
		b, err := json.Marshal(s.Origin)
		if err != nil {
			return xerr.Wrap(xerr.Internal, err, "marshal origin")
		}
		origin = string(b)
	}

	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO session_summaries
		 (id, project_id, session_id, topics_json, decisions_json, next_steps_json, key_files_json, origin_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, s.SessionID, string(topics), string(decisions),
		string(nextSteps), string(keyFiles), origin, s.CreatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "store session summary")
	}
	return nil
}

// GetSessionSummary returns the latest summary for a session, or nil.
func (d *DB) GetSessionSummary(ctx context.Context, sessionID string) (*SessionSummary, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, project_id, session_id, topics_json, decisions_json, next_steps_json, key_files_json, origin_json, created_at
		 FROM session_summaries WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`,
		sessionID,
	)

	var s SessionSummary
	var topics, decisions, nextSteps, keyFiles string
	var origin sql.NullString
	err := row.Scan(&s.ID, &s.ProjectID, &s.SessionID, &topics, &decisions, &nextSteps, &keyFiles, &origin, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "get session summary")
	}
	json.Unmarshal([]byte(topics), &s.Topics)
	json.Unmarshal([]byte(decisions), &s.Decisions)
	json.Unmarshal([]byte(nextSteps), &s.NextSteps)
	json.Unmarshal([]byte(keyFiles), &s.KeyFiles)
	if origin.Valid {
		var o OriginContext
		if json.Unmarshal([]byte(origin.String), &o) == nil {
			s.Origin = &o
		}
	}
	return &s, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*Observation, error) {
	var obs Observation
	var typ, tags, meta string
	var embeddingID sql.NullString
	err := row.Scan(&obs.ID, &obs.ProjectID, &obs.Content, &obs.ContentHash,
		&typ, &tags, &meta, &obs.CreatedAt, &embeddingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "scan observation")
	}
	obs.Type = ObservationType(typ)
	if err := json.Unmarshal([]byte(tags), &obs.Tags); err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "decode tags")
	}
	if err := json.Unmarshal([]byte(meta), &obs.Metadata); err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "decode metadata")
	}
	obs.EmbeddingID = embeddingID.String
	return &obs, nil
}

func scanObservations(rows *sql.Rows) ([]*Observation, error) {
	var result []*Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, obs)
	}
	return result, rows.Err()
}

// filterClauses renders the SQL-expressible parts of the filter.
func filterClauses(f *MemoryFilter) (string, []any) {
	if f == nil {
		return "", nil
	}
	var where string
	var args []any
	if f.ProjectID != "" {
		where += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		where += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Since != 0 {
		where += ` AND created_at >= ?`
		args = append(args, f.Since)
	}
	if f.Until != 0 {
		where += ` AND created_at <= ?`
		args = append(args, f.Until)
	}
	return where, args
}

// filterInMemory applies the predicates filterClauses cannot push down
// (tags, session/repo/branch/commit inside metadata_json).
func filterInMemory(obs []*Observation, f *MemoryFilter) []*Observation {
	if f == nil {
		return obs
	}
	out := obs[:0]
	for _, o := range obs {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// ftsQuote turns free text into a safe FTS5 query: each term quoted, AND'd.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f != "" {
			terms = append(terms, `"`+f+`"`)
		}
	}
	return strings.Join(terms, " ")
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
