package db

// Persisted entity types. Timestamps are Unix epoch seconds unless a field
// name says otherwise.

// ObservationType classifies an observation.
type ObservationType string

const (
	ObsCode        ObservationType = "code"
	ObsContext     ObservationType = "context"
	ObsDecision    ObservationType = "decision"
	ObsExecution   ObservationType = "execution"
	ObsQualityGate ObservationType = "quality_gate"
	ObsError       ObservationType = "error"
	ObsSummary     ObservationType = "summary"
)

// ValidObservationTypes lists every accepted observation type, for error
// messages at the tool boundary.
var ValidObservationTypes = []ObservationType{
	ObsCode, ObsContext, ObsDecision, ObsExecution, ObsQualityGate, ObsError, ObsSummary,
}

// ParseObservationType validates a raw type string.
func ParseObservationType(s string) (ObservationType, bool) {
	for _, t := range ValidObservationTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ExecutionMetadata captures a command execution attached to an observation.
type ExecutionMetadata struct {
	ExecutionID string `json:"execution_id,omitempty"`
	Command     string `json:"command,omitempty"`
	ExitCode    int    `json:"exit_code"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
}

// QualityGateResult captures a quality-gate evaluation attached to an
// observation.
type QualityGateResult struct {
	Gate    string `json:"gate"`
	Status  string `json:"status"` // "passed", "failed", "skipped"
	Details string `json:"details,omitempty"`
}

// OriginContext records where an observation was written from.
type OriginContext struct {
	ProjectID string `json:"project_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ObservationMetadata is the typed metadata stored with an observation.
// Branch and commit are captured at write time and never rewritten.
type ObservationMetadata struct {
	SessionID       string             `json:"session_id,omitempty"`
	ParentSessionID string             `json:"parent_session_id,omitempty"`
	RepoID          string             `json:"repo_id,omitempty"`
	Branch          string             `json:"branch,omitempty"`
	Commit          string             `json:"commit,omitempty"`
	FilePath        string             `json:"file_path,omitempty"`
	Execution       *ExecutionMetadata `json:"execution,omitempty"`
	QualityGate     *QualityGateResult `json:"quality_gate,omitempty"`
	Origin          *OriginContext     `json:"origin,omitempty"`
}

// Observation is a content-addressed memory entry.
type Observation struct {
	ID          string              `json:"id"`
	ProjectID   string              `json:"project_id"`
	Content     string              `json:"content"`
	ContentHash string              `json:"content_hash"`
	Type        ObservationType     `json:"type"`
	Tags        []string            `json:"tags,omitempty"`
	Metadata    ObservationMetadata `json:"metadata"`
	CreatedAt   int64               `json:"created_at"`
	EmbeddingID string              `json:"embedding_id,omitempty"`
}

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ParseSessionStatus validates a raw status string.
func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch SessionStatus(s) {
	case SessionActive, SessionCompleted, SessionFailed:
		return SessionStatus(s), true
	}
	return "", false
}

// AgentSession is one agent run recorded in the ledger.
type AgentSession struct {
	ID               string        `json:"id"`
	SessionSummaryID string        `json:"session_summary_id,omitempty"`
	AgentType        string        `json:"agent_type"`
	Model            string        `json:"model,omitempty"`
	ParentSessionID  string        `json:"parent_session_id,omitempty"`
	StartedAt        int64         `json:"started_at"`
	EndedAt          int64         `json:"ended_at,omitempty"`
	DurationMs       int64         `json:"duration_ms,omitempty"`
	Status           SessionStatus `json:"status"`
	PromptSummary    string        `json:"prompt_summary,omitempty"`
	ResultSummary    string        `json:"result_summary,omitempty"`
	TokenCount       int64         `json:"token_count,omitempty"`
	ToolCallsCount   int64         `json:"tool_calls_count,omitempty"`
	DelegationsCount int64         `json:"delegations_count,omitempty"`
	ProjectID        string        `json:"project_id,omitempty"`
	WorktreeID       string        `json:"worktree_id,omitempty"`
}

// ToolCall is one logged tool invocation belonging to a session.
type ToolCall struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	ToolName      string `json:"tool_name"`
	ParamsSummary string `json:"params_summary,omitempty"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// Delegation is a parent→child session hand-off.
type Delegation struct {
	ID                string `json:"id"`
	ParentSessionID   string `json:"parent_session_id"`
	ChildSessionID    string `json:"child_session_id"`
	Prompt            string `json:"prompt"`
	PromptEmbeddingID string `json:"prompt_embedding_id,omitempty"`
	Result            string `json:"result,omitempty"`
	Success           bool   `json:"success"`
	CreatedAt         int64  `json:"created_at"`
	CompletedAt       int64  `json:"completed_at,omitempty"`
	DurationMs        int64  `json:"duration_ms,omitempty"`
}

// CheckpointType classifies a checkpoint payload.
type CheckpointType string

const (
	CheckpointGit    CheckpointType = "git"
	CheckpointFile   CheckpointType = "file"
	CheckpointConfig CheckpointType = "config"
)

// ParseCheckpointType validates a raw checkpoint type.
func ParseCheckpointType(s string) (CheckpointType, bool) {
	switch CheckpointType(s) {
	case CheckpointGit, CheckpointFile, CheckpointConfig:
		return CheckpointType(s), true
	}
	return "", false
}

// Checkpoint is a restorable snapshot attached to a session. The snapshot
// payload is opaque JSON; applying it is an external collaborator's job.
type Checkpoint struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	Type         CheckpointType `json:"checkpoint_type"`
	Description  string         `json:"description"`
	SnapshotData string         `json:"snapshot_data"` // opaque JSON
	CreatedAt    int64          `json:"created_at"`
	RestoredAt   int64          `json:"restored_at,omitempty"`
	Expired      bool           `json:"expired,omitempty"`
}

// FileHashRecord tracks one file's indexed content hash.
type FileHashRecord struct {
	Collection  string `json:"collection"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Tombstone   bool   `json:"tombstone"`
	UpdatedAt   int64  `json:"updated_at"`
}

// SessionSummary is a compiled high-level summary of an agent session.
type SessionSummary struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Topics    []string       `json:"topics,omitempty"`
	Decisions []string       `json:"decisions,omitempty"`
	NextSteps []string       `json:"next_steps,omitempty"`
	KeyFiles  []string       `json:"key_files,omitempty"`
	Origin    *OriginContext `json:"origin,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// ErrorPattern is a recurring error signature with known solutions. It is
// serialised into the content of an Error-typed observation.
type ErrorPattern struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id"`
	Signature       string   `json:"signature"`
	Category        string   `json:"category,omitempty"`
	Solutions       []string `json:"solutions,omitempty"`
	AffectedFiles   []string `json:"affected_files,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	OccurrenceCount int      `json:"occurrence_count"`
	FirstSeenAt     int64    `json:"first_seen_at"`
	LastSeenAt      int64    `json:"last_seen_at"`
}

// Repository is a registered VCS repository.
type Repository struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	LocalPath string `json:"local_path"`
	VCSType   string `json:"vcs_type"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Branch is a known branch of a registered repository.
type Branch struct {
	ID        string `json:"id"`
	RepoID    string `json:"repo_id"`
	Name      string `json:"name"`
	HeadRef   string `json:"head_ref,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Worktree is a checked-out working tree of a repository.
type Worktree struct {
	ID        string `json:"id"`
	RepoID    string `json:"repo_id"`
	Branch    string `json:"branch"`
	Path      string `json:"path"`
	AgentID   string `json:"agent_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
