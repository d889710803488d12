package db

import (
	"context"
	"database/sql"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// FileHashChanged reports whether the file at path changed since the last
// successful index of the collection. Unknown paths and tombstoned paths
// count as changed.
func (d *DB) FileHashChanged(ctx context.Context, collection, path, contentHash string) (bool, error) {
	var stored string
	var tombstone int
	err := d.conn.QueryRowContext(ctx,
		`SELECT content_hash, tombstone FROM file_hashes WHERE collection = ? AND path = ?`,
		collection, path,
	).Scan(&stored, &tombstone)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, xerr.Wrap(xerr.Database, err, "read file hash")
	}
	return tombstone != 0 || stored != contentHash, nil
}

// UpsertFileHash records the indexed content hash for a path and clears any
// tombstone.
func (d *DB) UpsertFileHash(ctx context.Context, collection, path, contentHash string, updatedAt int64) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO file_hashes (collection, path, content_hash, tombstone, updated_at)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT (collection, path)
		 DO UPDATE SET content_hash = excluded.content_hash, tombstone = 0, updated_at = excluded.updated_at`,
		collection, path, contentHash, updatedAt,
	)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "upsert file hash")
	}
	return nil
}

// DeleteFileHash removes the ledger entry for a path.
func (d *DB) DeleteFileHash(ctx context.Context, collection, path string) error {
	_, err := d.conn.ExecContext(ctx,
		`DELETE FROM file_hashes WHERE collection = ? AND path = ?`, collection, path)
	if err != nil {
		return xerr.Wrap(xerr.Database, err, "delete file hash")
	}
	return nil
}

// TombstoneCollection marks every ledger entry of a collection as stale, so
// the next index run treats all files as changed.
func (d *DB) TombstoneCollection(ctx context.Context, collection string, updatedAt int64) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE file_hashes SET tombstone = 1, updated_at = ? WHERE collection = ?`,
		updatedAt, collection)
	if err != nil {
		return 0, xerr.Wrap(xerr.Database, err, "tombstone collection")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListFileHashes returns the ledger for a collection, tombstones included.
func (d *DB) ListFileHashes(ctx context.Context, collection string) ([]*FileHashRecord, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT collection, path, content_hash, tombstone, updated_at
		 FROM file_hashes WHERE collection = ? ORDER BY path`,
		collection)
	if err != nil {
		return nil, xerr.Wrap(xerr.Database, err, "list file hashes")
	}
	defer rows.Close()

	var out []*FileHashRecord
	for rows.Next() {
		var r FileHashRecord
		var tombstone int
		if err := rows.Scan(&r.Collection, &r.Path, &r.ContentHash, &tombstone, &r.UpdatedAt); err != nil {
			return nil, xerr.Wrap(xerr.Database, err, "scan file hash")
		}
		r.Tombstone = tombstone != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}
