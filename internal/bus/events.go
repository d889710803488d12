package bus

// Event is implemented by every typed bus event.
type Event interface {
	Topic() string
}

// IndexRebuild requests a rebuild of one collection, or all when empty.
type IndexRebuild struct {
	Collection string `json:"collection,omitempty"`
}

// IndexingStarted announces a new indexing operation.
type IndexingStarted struct {
	Collection string `json:"collection"`
	TotalFiles int    `json:"total_files"`
}

// IndexingProgress reports per-file indexing progress.
type IndexingProgress struct {
	Collection     string `json:"collection"`
	CurrentFile    string `json:"current_file"`
	ProcessedFiles int    `json:"processed_files"`
	TotalFiles     int    `json:"total_files"`
}

// IndexingCompleted announces a finished indexing operation.
type IndexingCompleted struct {
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
	DurationMs int64  `json:"duration_ms"`
}

// IndexingFailed announces a fatally failed indexing operation.
type IndexingFailed struct {
	Collection string `json:"collection"`
	Error      string `json:"error"`
}

// SyncCompleted announces a finished workspace sync pass.
type SyncCompleted struct {
	Path         string `json:"path"`
	FilesChanged int    `json:"files_changed"`
}

// CacheInvalidate requests eviction of a cache namespace, or all when empty.
type CacheInvalidate struct {
	Namespace string `json:"namespace,omitempty"`
}

// SnapshotCreated announces a new session checkpoint.
type SnapshotCreated struct {
	SessionID    string `json:"session_id"`
	CheckpointID string `json:"checkpoint_id"`
}

// FileChangesDetected reports filesystem changes observed by the syncer.
type FileChangesDetected struct {
	RootPath string   `json:"root_path"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// ConfigReloaded announces that the configuration was reloaded from disk.
type ConfigReloaded struct{}

// LogEvent mirrors warning/error log lines onto the bus.
type LogEvent struct {
	Level       string `json:"level"`
	Message     string `json:"message"`
	Target      string `json:"target"`
	TimestampMs int64  `json:"timestamp_ms"`
}

func (IndexRebuild) Topic() string        { return "index_rebuild" }
func (IndexingStarted) Topic() string     { return "indexing_started" }
func (IndexingProgress) Topic() string    { return "indexing_progress" }
func (IndexingCompleted) Topic() string   { return "indexing_completed" }
func (IndexingFailed) Topic() string      { return "indexing_failed" }
func (SyncCompleted) Topic() string       { return "sync_completed" }
func (CacheInvalidate) Topic() string     { return "cache_invalidate" }
func (SnapshotCreated) Topic() string     { return "snapshot_created" }
func (FileChangesDetected) Topic() string { return "file_changes_detected" }
func (ConfigReloaded) Topic() string      { return "config_reloaded" }
func (LogEvent) Topic() string            { return "log_event" }
