// Package db implements the relational store on SQLite: observations,
// agent sessions, tool calls, delegations, checkpoints, the file-hash
// ledger, session summaries, and the entity registries.
//
// Migrations are ordered and applied on startup. If the database file is
// corrupted (open or migration failure), the store backs the file up with a
// timestamp suffix, creates a fresh database, and re-runs migrations. That
// recovery is best-effort and data-loss-tolerant: callers re-ingest.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// DB wraps the SQLite handle and exposes the repositories as methods.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*DB, error) {
	d, err := open(path)
	if err == nil {
		return d, nil
	}
	if path == ":memory:" {
		return nil, err
	}

	// Corruption recovery: back up and start fresh.
	backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
	slog.Error("database unusable, backing up and recreating",
		"path", path, "backup", backup, "error", err)
	if renameErr := os.Rename(path, backup); renameErr != nil {
		return nil, xerr.Wrap(xerr.Database, err, "open database %s (backup also failed: %v)", path, renameErr)
	}

	d, err = open(path)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "recreate database %s", path)
	}
	slog.Warn("database recreated after corruption, previous data requires re-ingestion", "path", path)
	return d, nil
}

func open(path string) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, xerr.Wrap(xerr.IO, err, "create database directory %s", dir)
			}
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "open sqlite %s", path)
	}
	// A single writer keeps sqlite transactions linearised.
	conn.SetMaxOpenConns(1)

	d := &DB{conn: conn, path: path}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("relational store opened", "path", path)
	return d, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

func (d *DB) migrate() error {
	if _, err := d.conn.Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at INTEGER NOT NULL)`,
	); err != nil {
		return xerr.Wrap(xerr.Database, err, "create schema_migrations")
	}

	var current int
	if err := d.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return xerr.Wrap(xerr.Database, err, "read schema version")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := d.conn.Begin()
		if err != nil {
			return xerr.Wrap(xerr.Database, err, "begin migration %d", m.version)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return xerr.Wrap(xerr.Database, err, "migration %d", m.version)
			}
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().Unix(),
		); err != nil {
			tx.Rollback()
			return xerr.Wrap(xerr.Database, err, "record migration %d", m.version)
		}
		if err := tx.Commit(); err != nil {
			return xerr.Wrap(xerr.Database, err, "commit migration %d", m.version)
		}
		slog.Debug("applied migration", "version", m.version)
	}
	return nil
}
