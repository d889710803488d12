package index

import (
	"sync"
	"time"

	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// OperationStatus is the lifecycle state of an indexing operation.
type OperationStatus string

const (
	OpStarting  OperationStatus = "starting"
	OpRunning   OperationStatus = "running"
	OpCompleted OperationStatus = "completed"
	OpFailed    OperationStatus = "failed"
)

// Operation is a snapshot of one indexing run's progress.
type Operation struct {
	ID             ids.OperationID `json:"id"`
	Collection     string          `json:"collection"`
	Status         OperationStatus `json:"status"`
	TotalFiles     int             `json:"total_files"`
	ProcessedFiles int             `json:"processed_files"`
	SkippedFiles   int             `json:"skipped_files"`
	CurrentFile    string          `json:"current_file,omitempty"`
	ChunksCreated  int             `json:"chunks_created"`
	FailedFiles    []string        `json:"failed_files,omitempty"`
	Message        string          `json:"message,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at,omitempty"`
}

// Terminal operations stay queryable for this long, then get swept.
const opRetention = 5 * time.Minute

// Tracker holds the state of all known operations. Writes are atomic per
// operation; at most one non-terminal operation exists per collection.
// Terminal operations are retained briefly for status queries and evicted
// after opRetention.
type Tracker struct {
	mu     sync.RWMutex
	ops    map[ids.OperationID]*Operation
	byColl map[string]ids.OperationID // collection -> active op
	now    func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops:    make(map[ids.OperationID]*Operation),
		byColl: make(map[string]ids.OperationID),
		now:    time.Now,
	}
}

// expired reports whether the operation is terminal and past retention.
func (t *Tracker) expired(op *Operation) bool {
	if op.Status != OpCompleted && op.Status != OpFailed {
		return false
	}
	return t.now().Sub(op.FinishedAt) > opRetention
}

// sweepLocked drops terminal operations past retention. Caller holds mu.
func (t *Tracker) sweepLocked() {
	for id, op := range t.ops {
		if t.expired(op) {
			delete(t.ops, id)
		}
	}
}

// Begin registers a new operation for the collection. A second active
// operation on the same collection is rejected with a conflict error.
func (t *Tracker) Begin(collection string, totalFiles int) (ids.OperationID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sweepLocked()

	if active, ok := t.byColl[collection]; ok {
		return ids.OperationID{}, xerr.New(xerr.Conflict,
			"collection %s already has active operation %s", collection, active)
	}

	id := ids.NewOperationID()
	t.ops[id] = &Operation{
		ID:         id,
		Collection: collection,
		Status:     OpStarting,
		TotalFiles: totalFiles,
		StartedAt:  time.Now(),
	}
	t.byColl[collection] = id
	return id, nil
}

// Progress records that the file at position processed is being handled.
func (t *Tracker) Progress(id ids.OperationID, currentFile string, processed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok {
		return
	}
	op.Status = OpRunning
	op.CurrentFile = currentFile
	op.ProcessedFiles = processed
}

// SetTotal updates total_files once discovery finishes.
func (t *Tracker) SetTotal(id ids.OperationID, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if op, ok := t.ops[id]; ok {
		op.TotalFiles = total
	}
}

// AddFailure appends a file to the operation's failed list.
func (t *Tracker) AddFailure(id ids.OperationID, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if op, ok := t.ops[id]; ok {
		op.FailedFiles = append(op.FailedFiles, file)
	}
}

// Complete moves the operation to its terminal Completed state.
func (t *Tracker) Complete(id ids.OperationID, processed, skipped, chunks int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok {
		return
	}
	op.Status = OpCompleted
	op.ProcessedFiles = processed
	op.SkippedFiles = skipped
	op.ChunksCreated = chunks
	op.CurrentFile = ""
	op.FinishedAt = time.Now()
	delete(t.byColl, op.Collection)
}

// Fail moves the operation to its terminal Failed state.
func (t *Tracker) Fail(id ids.OperationID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok {
		return
	}
	op.Status = OpFailed
	op.Message = message
	op.FinishedAt = time.Now()
	delete(t.byColl, op.Collection)
}

// Get returns a copy of the operation, or nil when unknown or already
// swept after retention.
func (t *Tracker) Get(id ids.OperationID) *Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[id]
	if !ok || t.expired(op) {
		return nil
	}
	snapshot := *op
	snapshot.FailedFiles = append([]string(nil), op.FailedFiles...)
	return &snapshot
}

// Purge drops all operations recorded for a collection.
func (t *Tracker) Purge(collection string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, op := range t.ops {
		if op.Collection == collection {
			delete(t.ops, id)
		}
	}
	delete(t.byColl, collection)
}
