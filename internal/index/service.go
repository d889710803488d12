// Package index implements the incremental indexing pipeline: discovery,
// hash-gated change detection, chunking, embedding, vector insertion, and
// progress tracking with bus events.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcbridge/mcbridge/internal/bus"
	"github.com/mcbridge/mcbridge/internal/chunking"
	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/vcs"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// branchIndexParallelism bounds concurrent branch indexing goroutines.
const branchIndexParallelism = 4

// Service orchestrates indexing runs.
type Service struct {
	store   *db.DB
	ctxsvc  *contextsvc.Service
	chunker *chunking.Chunker
	tracker *Tracker
	bus     *bus.Bus
	cfg     config.IndexingConfig
}

// NewService wires the indexing pipeline.
func NewService(store *db.DB, ctxsvc *contextsvc.Service, chunker *chunking.Chunker, tracker *Tracker, b *bus.Bus, cfg config.IndexingConfig) *Service {
	return &Service{store: store, ctxsvc: ctxsvc, chunker: chunker, tracker: tracker, bus: b, cfg: cfg}
}

// Tracker exposes the operations tracker for status queries.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Start begins indexing root into collection and returns the operation id
// immediately; the run proceeds in the background. A second start on a
// collection with an active operation fails with a conflict error.
func (s *Service) Start(ctx context.Context, root, collection string) (ids.OperationID, error) {
	if collection == "" {
		return ids.OperationID{}, xerr.New(xerr.InvalidArgument, "collection cannot be empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return ids.OperationID{}, xerr.Wrap(xerr.NotFound, err, "workspace root %s", root)
	}
	if !info.IsDir() {
		return ids.OperationID{}, xerr.New(xerr.InvalidArgument, "workspace root %s is not a directory", root)
	}

	opID, err := s.tracker.Begin(collection, 0)
	if err != nil {
		return ids.OperationID{}, err
	}

	go s.run(context.WithoutCancel(ctx), opID, root, collection)
	return opID, nil
}

// Run performs a synchronous indexing run and returns the finished
// operation snapshot. The CLI index command uses it.
func (s *Service) Run(ctx context.Context, root, collection string) (*Operation, error) {
	opID, err := s.Start(ctx, root, collection)
	if err != nil {
		return nil, err
	}
	for {
		op := s.tracker.Get(opID)
		if op == nil {
			return nil, xerr.New(xerr.Internal, "operation %s vanished", opID)
		}
		if op.Status == OpCompleted || op.Status == OpFailed {
			return op, nil
		}
		select {
		case <-ctx.Done():
			return op, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (s *Service) run(ctx context.Context, opID ids.OperationID, root, collection string) {
	started := time.Now()

	files, err := Discover(root, s.cfg)
	if err != nil {
		s.fail(opID, collection, err)
		return
	}
	s.tracker.SetTotal(opID, len(files))
	s.bus.Publish(bus.IndexingStarted{Collection: collection, TotalFiles: len(files)})
	slog.Info("indexing started", "collection", collection, "total_files", len(files), "operation", opID)

	if err := s.ctxsvc.Initialize(ctx, collection); err != nil {
		s.fail(opID, collection, err)
		return
	}

	processed, skipped, chunks := 0, 0, 0
	for i, file := range files {
		if ctx.Err() != nil {
			s.fail(opID, collection, xerr.Wrap(xerr.Infrastructure, ctx.Err(), "indexing cancelled"))
			return
		}
		s.tracker.Progress(opID, file.RelPath, i)
		s.bus.Publish(bus.IndexingProgress{
			Collection:     collection,
			CurrentFile:    file.RelPath,
			ProcessedFiles: i,
			TotalFiles:     len(files),
		})

		n, changed, err := s.processFile(ctx, collection, file)
		if err != nil {
			// Fatal errors stop the run; per-file errors are recorded
			// and the run continues.
			if isFatal(err) {
				s.fail(opID, collection, err)
				return
			}
			slog.Warn("file indexing failed", "collection", collection, "file", file.RelPath, "error", err)
			s.bus.Publish(bus.LogEvent{
				Level:       "warn",
				Message:     "file indexing failed: " + err.Error(),
				Target:      file.RelPath,
				TimestampMs: time.Now().UnixMilli(),
			})
			s.tracker.AddFailure(opID, file.RelPath)
			continue
		}
		if !changed {
			skipped++
			continue
		}
		processed++
		chunks += n
	}

	s.tracker.Complete(opID, processed, skipped, chunks)
	duration := time.Since(started)
	s.bus.Publish(bus.IndexingCompleted{
		Collection: collection,
		Chunks:     chunks,
		DurationMs: duration.Milliseconds(),
	})
	slog.Info("indexing completed",
		"collection", collection, "processed", processed, "skipped", skipped,
		"chunks", chunks, "duration", duration)
}

// processFile indexes one file. It returns the number of chunks stored and
// whether the file had changed since the last run.
func (s *Service) processFile(ctx context.Context, collection string, file DiscoveredFile) (int, bool, error) {
	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return 0, false, xerr.Wrap(xerr.IO, err, "read %s", file.RelPath)
	}
	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	changed, err := s.store.FileHashChanged(ctx, collection, file.RelPath, contentHash)
	if err != nil {
		return 0, false, err
	}
	if !changed {
		return 0, false, nil
	}

	chunks, err := s.chunker.Chunk(string(data), file.RelPath)
	if err != nil {
		return 0, false, err
	}
	if len(chunks) == 0 {
		// No chunks stored, so no hash upsert: the file is retried on
		// the next run.
		return 0, true, nil
	}

	if _, err := s.ctxsvc.StoreChunks(ctx, collection, file.RelPath, chunks); err != nil {
		return 0, false, err
	}
	if err := s.store.UpsertFileHash(ctx, collection, file.RelPath, contentHash, time.Now().Unix()); err != nil {
		return 0, false, err
	}
	return len(chunks), true, nil
}

func (s *Service) fail(opID ids.OperationID, collection string, err error) {
	slog.Error("indexing failed", "collection", collection, "operation", opID, "error", err)
	s.tracker.Fail(opID, err.Error())
	s.bus.Publish(bus.IndexingFailed{Collection: collection, Error: err.Error()})
	s.bus.Publish(bus.LogEvent{
		Level:       "error",
		Message:     "indexing failed: " + err.Error(),
		Target:      collection,
		TimestampMs: time.Now().UnixMilli(),
	})
}

// isFatal reports whether an error should terminate the whole operation
// rather than just skip the file.
func isFatal(err error) bool {
	switch xerr.KindOf(err) {
	case xerr.VectorDB, xerr.Database, xerr.Infrastructure, xerr.Configuration:
		return true
	}
	return false
}

// RemoveFile drops a deleted file from the hash ledger so a re-created
// file is reprocessed. Stale vectors for the old content remain until the
// collection is cleared.
func (s *Service) RemoveFile(ctx context.Context, collection, relPath string) error {
	return s.store.DeleteFileHash(ctx, collection, relPath)
}

// Clear deletes the vector collection, tombstones its hash ledger, and
// purges tracked operations.
func (s *Service) Clear(ctx context.Context, collection string) error {
	if err := s.ctxsvc.Drop(ctx, collection); err != nil {
		return err
	}
	n, err := s.store.TombstoneCollection(ctx, collection, time.Now().Unix())
	if err != nil {
		return err
	}
	s.tracker.Purge(collection)
	s.bus.Publish(bus.CacheInvalidate{Namespace: "collection:" + collection})
	slog.Info("collection cleared", "collection", collection, "tombstoned", n)
	return nil
}

// IndexBranches indexes the files of each branch of a repository into a
// per-branch collection named "<collection>:<branch>". Branches are
// processed concurrently.
func (s *Service) IndexBranches(ctx context.Context, provider vcs.Provider, repo *vcs.Repository, collection string, branches []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(branchIndexParallelism)

	for _, branch := range branches {
		g.Go(func() error {
			return s.indexBranch(ctx, provider, repo, collection+":"+branch, branch)
		})
	}
	return g.Wait()
}

func (s *Service) indexBranch(ctx context.Context, provider vcs.Provider, repo *vcs.Repository, collection, branch string) error {
	files, err := provider.ListFiles(ctx, repo, branch)
	if err != nil {
		return err
	}
	if err := s.ctxsvc.Initialize(ctx, collection); err != nil {
		return err
	}

	chunks := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lang := chunking.LanguageForPath(path); lang == "" {
			continue
		}
		data, err := provider.ReadFile(ctx, repo, branch, path)
		if err != nil {
			slog.Warn("branch file read failed", "branch", branch, "file", path, "error", err)
			continue
		}
		sum := sha256.Sum256(data)
		contentHash := hex.EncodeToString(sum[:])
		changed, err := s.store.FileHashChanged(ctx, collection, path, contentHash)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		parts, err := s.chunker.Chunk(string(data), path)
		if err != nil || len(parts) == 0 {
			continue
		}
		if _, err := s.ctxsvc.StoreChunks(ctx, collection, path, parts); err != nil {
			return err
		}
		if err := s.store.UpsertFileHash(ctx, collection, path, contentHash, time.Now().Unix()); err != nil {
			return err
		}
		chunks += len(parts)
	}
	slog.Info("branch indexed", "collection", collection, "branch", branch, "chunks", chunks)
	return nil
}
