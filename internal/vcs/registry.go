package vcs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mcbridge/mcbridge/internal/xerr"
)

// Registry remembers opened repositories across processes in a JSON file
// guarded by a sidecar lock file, so concurrent servers sharing a registry
// path do not clobber each other's writes.
type Registry struct {
	path string
	mu   sync.Mutex
}

type registryFile struct {
	Repositories map[string]registryEntry `json:"repositories"` // id -> entry
}

type registryEntry struct {
	Path     string `json:"path"`
	OpenedAt int64  `json:"opened_at"`
}

const lockRetryInterval = 20 * time.Millisecond

// NewRegistry returns a registry persisted at path. The file is created on
// first write.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Record remembers a repository. Re-recording updates the opened_at stamp.
func (r *Registry) Record(repo *Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	state, err := r.load()
	if err != nil {
		return err
	}
	state.Repositories[repo.ID] = registryEntry{Path: repo.Path, OpenedAt: time.Now().Unix()}
	return r.save(state)
}

// Lookup returns the recorded path for a repository id, or "" when unknown.
func (r *Registry) Lookup(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := r.lock()
	if err != nil {
		return "", err
	}
	defer unlock()

	state, err := r.load()
	if err != nil {
		return "", err
	}
	return state.Repositories[id].Path, nil
}

// List returns all recorded repositories, ordered by path.
func (r *Registry) List() ([]*Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	state, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]*Repository, 0, len(state.Repositories))
	for id, entry := range state.Repositories {
		out = append(out, &Repository{ID: id, Path: entry.Path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// lock acquires the sidecar lock file, waiting up to ~2s for a holder.
func (r *Registry) lock() (func(), error) {
	lockPath := r.path + ".lock"
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerr.Wrap(xerr.IO, err, "create registry directory")
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, xerr.Wrap(xerr.IO, err, "acquire registry lock")
		}
		if time.Now().After(deadline) {
			// A crashed holder leaves the lock behind; steal it.
			os.Remove(lockPath)
		}
		time.Sleep(lockRetryInterval)
	}
}

func (r *Registry) load() (*registryFile, error) {
	state := &registryFile{Repositories: make(map[string]registryEntry)}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return nil, xerr.Wrap(xerr.IO, err, "read repository registry")
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, xerr.Wrap(xerr.IO, err, "parse repository registry")
	}
	if state.Repositories == nil {
		state.Repositories = make(map[string]registryEntry)
	}
	return state, nil
}

func (r *Registry) save(state *registryFile) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return xerr.Wrap(xerr.Internal, err, "encode repository registry")
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return xerr.Wrap(xerr.IO, err, "write repository registry")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return xerr.Wrap(xerr.IO, err, "replace repository registry")
	}
	return nil
}
