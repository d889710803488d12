// Package syncer watches a workspace for file changes and keeps its index
// collection current through debounced incremental re-index passes.
package syncer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mcbridge/mcbridge/internal/bus"
	"github.com/mcbridge/mcbridge/internal/config"
	"github.com/mcbridge/mcbridge/internal/index"
)

// changeKind classifies one pending filesystem change.
type changeKind int

const (
	changeAdded changeKind = iota
	changeModified
	changeRemoved
)

// Syncer watches one workspace root and re-indexes a collection when its
// files change. Hash gating in the indexer keeps the passes incremental.
type Syncer struct {
	index      *index.Service
	bus        *bus.Bus
	cfg        config.SyncConfig
	indexCfg   config.IndexingConfig
	root       string
	collection string

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// debounce state
	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]changeKind // workspace-relative path -> kind
	flushed chan struct{}         // signals the run loop to sync
}

// New creates a workspace syncer. Call Start to begin watching.
func New(indexSvc *index.Service, b *bus.Bus, cfg config.SyncConfig, indexCfg config.IndexingConfig, root, collection string) (*Syncer, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Syncer{
		index:      indexSvc,
		bus:        b,
		cfg:        cfg,
		indexCfg:   indexCfg,
		root:       root,
		collection: collection,
		fsw:        fsw,
		pending:    make(map[string]changeKind),
		flushed:    make(chan struct{}, 1),
	}, nil
}

// Start begins watching the workspace tree.
func (s *Syncer) Start(ctx context.Context) error {
	watched := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && index.IgnoredDir(rel, s.indexCfg) {
			return filepath.SkipDir
		}
		if addErr := s.fsw.Add(path); addErr != nil {
			slog.Warn("syncer: cannot watch dir", "path", path, "error", addErr)
			return nil
		}
		watched++
		return nil
	})
	if err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)

	slog.Info("syncer started", "root", s.root, "collection", s.collection, "watched_dirs", watched)
	return nil
}

// Stop shuts the syncer down and waits for the loop to exit.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.fsw.Close()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker = time.NewTicker(s.cfg.Interval)
		tick = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("syncer watch error", "error", err)

		case <-s.flushed:
			s.sync(ctx)

		case <-tick:
			// Periodic full pass catches events the watcher missed.
			s.sync(ctx)
		}
	}
}

func (s *Syncer) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(s.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// New directories join the watch set immediately; the debounced pass
	// picks up their files.
	if event.Has(fsnotify.Create) {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if !index.IgnoredDir(rel, s.indexCfg) {
				_ = s.fsw.Add(event.Name)
			}
			return
		}
	}

	if !index.Indexable(rel, s.indexCfg) {
		return
	}

	var kind changeKind
	switch {
	case event.Has(fsnotify.Create):
		kind = changeAdded
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = changeRemoved
	case event.Has(fsnotify.Write):
		kind = changeModified
	default:
		return
	}
	s.schedule(rel, kind)
}

func (s *Syncer) schedule(rel string, kind changeKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A remove after an add cancels out to removed; everything else keeps
	// the strongest signal seen.
	if prev, ok := s.pending[rel]; !ok || kind == changeRemoved || prev == changeModified {
		s.pending[rel] = kind
	}

	debounce := time.Duration(s.cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounce, func() {
		select {
		case s.flushed <- struct{}{}:
		default:
		}
	})
}

// sync drains the pending changes, publishes the change event, drops
// removed files from the hash ledger, and runs one incremental pass.
func (s *Syncer) sync(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]changeKind)
	s.mu.Unlock()

	var added, modified, removed []string
	for rel, kind := range pending {
		switch kind {
		case changeAdded:
			added = append(added, rel)
		case changeModified:
			modified = append(modified, rel)
		case changeRemoved:
			removed = append(removed, rel)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)

	if len(pending) > 0 {
		s.bus.Publish(bus.FileChangesDetected{
			RootPath: s.root,
			Added:    added,
			Modified: modified,
			Removed:  removed,
		})
	}

	for _, rel := range removed {
		if err := s.index.RemoveFile(ctx, s.collection, rel); err != nil {
			slog.Warn("syncer: dropping removed file failed", "path", rel, "error", err)
		}
	}

	op, err := s.index.Run(ctx, s.root, s.collection)
	if err != nil {
		slog.Error("sync pass failed", "collection", s.collection, "error", err)
		return
	}

	s.bus.Publish(bus.SyncCompleted{Path: s.root, FilesChanged: op.ProcessedFiles})
	slog.Info("sync completed",
		"collection", s.collection,
		"added", len(added), "modified", len(modified), "removed", len(removed),
		"files_processed", op.ProcessedFiles)
}
