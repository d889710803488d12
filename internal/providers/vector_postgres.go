package providers

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

//go:embed pgmigrations/*.sql
var pgMigrations embed.FS

func init() {
	RegisterVectorStore("postgres", func(cfg config.VectorStoreConfig) (VectorStore, error) {
		return newPostgresVectorStore(cfg.DSN)
	})
}

// postgresVectorStore keeps all collections in two tables and ranks by
// cosine similarity computed in SQL over real[] columns.
type postgresVectorStore struct {
	db *sqlx.DB
}

func newPostgresVectorStore(dsn string) (*postgresVectorStore, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "open postgres vector store")
	}
	if err := runPgMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &postgresVectorStore{db: db}, nil
}

func runPgMigrations(db *sqlx.DB) error {
	src, err := iofs.New(pgMigrations, "pgmigrations")
	if err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "load vector store migrations")
	}
	driver, err := migratepgx.WithInstance(db.DB, &migratepgx.Config{})
	if err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "prepare vector store migrations")
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "init vector store migrations")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return xerr.Wrap(xerr.VectorDB, err, "apply vector store migrations")
	}
	return nil
}

func (s *postgresVectorStore) Name() string { return "postgres" }

// Close releases the connection pool.
func (s *postgresVectorStore) Close() error { return s.db.Close() }

func (s *postgresVectorStore) CreateCollection(ctx context.Context, collection string, dims int) error {
	if dims <= 0 {
		return xerr.New(xerr.InvalidArgument, "collection dimensions must be positive, got %d", dims)
	}
	var existing int
	err := s.db.GetContext(ctx, &existing,
		`SELECT dims FROM vector_collections WHERE name = $1`, collection)
	if err == nil {
		if existing != dims {
			return xerr.New(xerr.Conflict, "collection %s exists with %d dimensions", collection, existing)
		}
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return xerr.Wrap(xerr.VectorDB, err, "lookup collection %s", collection)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO vector_collections (name, dims) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		collection, dims); err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "create collection %s", collection)
	}
	return nil
}

func (s *postgresVectorStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`, collection)
	if err != nil {
		return false, xerr.Wrap(xerr.VectorDB, err, "check collection %s", collection)
	}
	return exists, nil
}

func (s *postgresVectorStore) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM vector_collections WHERE name = $1`, collection); err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "delete collection %s", collection)
	}
	return nil
}

func (s *postgresVectorStore) InsertVectors(ctx context.Context, collection string, embeddings []Embedding, metadata []map[string]string) ([]string, error) {
	if len(embeddings) != len(metadata) {
		return nil, xerr.New(xerr.InvalidArgument,
			"got %d embeddings for %d metadata entries", len(embeddings), len(metadata))
	}

	var dims int
	err := s.db.GetContext(ctx, &dims, `SELECT dims FROM vector_collections WHERE name = $1`, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "lookup collection %s", collection)
	}
	for i, emb := range embeddings {
		if len(emb.Vector) != dims {
			return nil, xerr.New(xerr.InvalidArgument,
				"vector %d has %d dimensions, collection %s has %d", i, len(emb.Vector), collection, dims)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "begin insert")
	}
	defer tx.Rollback()

	ids := make([]string, len(embeddings))
	for i, emb := range embeddings {
		id := uuid.NewString()
		meta, err := json.Marshal(metadata[i])
		if err != nil {
			return nil, xerr.Wrap(xerr.Internal, err, "marshal vector metadata")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors (id, collection, embedding, metadata) VALUES ($1, $2, $3::real[], $4)`,
			id, collection, emb.Vector, meta); err != nil {
			return nil, xerr.Wrap(xerr.VectorDB, err, "insert vector")
		}
		ids[i] = id
	}
	if err := tx.Commit(); err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "commit insert")
	}
	return ids, nil
}

func (s *postgresVectorStore) SearchSimilar(ctx context.Context, collection string, query []float32, limit int) ([]SearchResult, error) {
	var dims int
	err := s.db.GetContext(ctx, &dims, `SELECT dims FROM vector_collections WHERE name = $1`, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerr.New(xerr.NotFound, "collection %s", collection)
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "lookup collection %s", collection)
	}
	if len(query) != dims {
		return nil, xerr.New(xerr.InvalidArgument,
			"query has %d dimensions, collection %s has %d", len(query), collection, dims)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.metadata::text,
		        (SELECT COALESCE(SUM(a * b) / NULLIF(sqrt(SUM(a * a)) * sqrt(SUM(b * b)), 0), 0)
		         FROM unnest(v.embedding, $2::real[]) AS t(a, b)) AS cos
		 FROM vectors v
		 WHERE v.collection = $1
		 ORDER BY cos DESC, v.id ASC
		 LIMIT $3`,
		collection, query, limit)
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "search collection %s", collection)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var id, meta string
		var cos float64
		if err := rows.Scan(&id, &meta, &cos); err != nil {
			return nil, xerr.Wrap(xerr.VectorDB, err, "scan search result")
		}
		var metadata map[string]string
		if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
			return nil, xerr.Wrap(xerr.Internal, err, "decode vector metadata")
		}
		score := (1 + cos) / 2
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out = append(out, SearchResult{ID: id, Score: float32(score), Metadata: metadata})
	}
	return out, rows.Err()
}

func (s *postgresVectorStore) DeleteVectors(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM vectors WHERE collection = ? AND id IN (?)`, collection, ids)
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "build delete query")
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return xerr.Wrap(xerr.VectorDB, err, "delete vectors")
	}
	return nil
}

func (s *postgresVectorStore) GetVectorsByIDs(ctx context.Context, collection string, ids []string) ([]VectorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, array_to_json(embedding)::text, metadata::text
		 FROM vectors WHERE collection = ? AND id IN (?)`, collection, ids)
	if err != nil {
		return nil, xerr.Wrap(xerr.Internal, err, "build lookup query")
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "get vectors by ids")
	}
	defer rows.Close()
	return scanVectorRecords(rows)
}

func (s *postgresVectorStore) ListVectors(ctx context.Context, collection string, limit int) ([]VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, array_to_json(embedding)::text, metadata::text
		 FROM vectors WHERE collection = $1 ORDER BY created_at ASC, id ASC LIMIT $2`,
		collection, limit)
	if err != nil {
		return nil, xerr.Wrap(xerr.VectorDB, err, "list vectors")
	}
	defer rows.Close()
	return scanVectorRecords(rows)
}

func scanVectorRecords(rows *sql.Rows) ([]VectorRecord, error) {
	var out []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var embedding, meta string
		if err := rows.Scan(&rec.ID, &embedding, &meta); err != nil {
			return nil, xerr.Wrap(xerr.VectorDB, err, "scan vector record")
		}
		if err := json.Unmarshal([]byte(embedding), &rec.Vector); err != nil {
			return nil, xerr.Wrap(xerr.Internal, err, "decode vector")
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, xerr.Wrap(xerr.Internal, err, "decode vector metadata")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
