package memsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// The overlays store structured records as typed observations so they share
// storage, dedup, and recall with free-form memory.

const errorPatternTag = "error-pattern"

// StoreQualityGate records a quality-gate evaluation as a quality_gate
// observation.
func (s *Service) StoreQualityGate(ctx context.Context, projectID string, gate db.QualityGateResult, meta db.ObservationMetadata) (string, bool, error) {
	if gate.Gate == "" {
		return "", false, xerr.New(xerr.InvalidArgument, "quality gate name cannot be empty")
	}
	switch gate.Status {
	case "passed", "failed", "skipped":
	default:
		return "", false, xerr.New(xerr.InvalidArgument, "unknown quality gate status %q", gate.Status)
	}
	meta.QualityGate = &gate
	content := fmt.Sprintf("quality gate %s: %s", gate.Gate, gate.Status)
	if gate.Details != "" {
		content += "\n" + gate.Details
	}
	return s.StoreObservation(ctx, projectID, content, db.ObsQualityGate, []string{"quality-gate", gate.Gate}, meta)
}

// ListQualityGates returns recorded quality-gate observations for a project,
// newest first. gate filters by gate name when non-empty.
func (s *Service) ListQualityGates(ctx context.Context, projectID, gate string, limit int) ([]*db.Observation, error) {
	filter := &db.MemoryFilter{ProjectID: projectID, Type: db.ObsQualityGate}
	if gate != "" {
		filter.Tags = []string{gate}
	}
	return s.store.ListObservations(ctx, filter, limit)
}

// StoreExecution records a command execution as an execution observation.
func (s *Service) StoreExecution(ctx context.Context, projectID string, exec db.ExecutionMetadata, meta db.ObservationMetadata) (string, bool, error) {
	if exec.Command == "" {
		return "", false, xerr.New(xerr.InvalidArgument, "execution command cannot be empty")
	}
	if exec.ExecutionID == "" {
		exec.ExecutionID = ids.NewObservationID().String()
	}
	meta.Execution = &exec
	content := fmt.Sprintf("execution %s exited %d", exec.Command, exec.ExitCode)
	if exec.Stderr != "" {
		content += "\n" + exec.Stderr
	}
	return s.StoreObservation(ctx, projectID, content, db.ObsExecution, []string{"execution"}, meta)
}

// ListExecutions returns recorded execution observations, newest first.
// failedOnly keeps only non-zero exit codes.
func (s *Service) ListExecutions(ctx context.Context, projectID string, failedOnly bool, limit int) ([]*db.Observation, error) {
	filter := &db.MemoryFilter{ProjectID: projectID, Type: db.ObsExecution}
	obs, err := s.store.ListObservations(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	if !failedOnly {
		return obs, nil
	}
	var out []*db.Observation
	for _, o := range obs {
		if o.Metadata.Execution != nil && o.Metadata.Execution.ExitCode != 0 {
			out = append(out, o)
		}
	}
	return out, nil
}

// StoreErrorPattern records a recurring error signature. The pattern is
// serialised as the content of an error-typed observation, so a re-stored
// identical pattern deduplicates; to bump occurrence counts callers store
// the updated pattern, which lands as a new observation version.
func (s *Service) StoreErrorPattern(ctx context.Context, pattern db.ErrorPattern) (string, bool, error) {
	if pattern.Signature == "" {
		return "", false, xerr.New(xerr.InvalidArgument, "error pattern signature cannot be empty")
	}
	if pattern.ID == "" {
		pattern.ID = ids.NewObservationID().String()
	}
	now := time.Now().Unix()
	if pattern.FirstSeenAt == 0 {
		pattern.FirstSeenAt = now
	}
	if pattern.LastSeenAt == 0 {
		pattern.LastSeenAt = now
	}
	if pattern.OccurrenceCount == 0 {
		pattern.OccurrenceCount = 1
	}

	payload, err := json.Marshal(pattern)
	if err != nil {
		return "", false, xerr.Wrap(xerr.Internal, err, "encode error pattern")
	}
	tags := append([]string{errorPatternTag}, pattern.Tags...)
	meta := db.ObservationMetadata{}
	if len(pattern.AffectedFiles) == 1 {
		meta.FilePath = pattern.AffectedFiles[0]
	}
	return s.StoreObservation(ctx, pattern.ProjectID, string(payload), db.ObsError, tags, meta)
}

// RecallErrorPatterns searches stored error patterns semantically and
// decodes the matching payloads. Observations that are not pattern
// payloads are skipped.
func (s *Service) RecallErrorPatterns(ctx context.Context, projectID, query string, limit int) ([]db.ErrorPattern, error) {
	filter := &db.MemoryFilter{
		ProjectID: projectID,
		Type:      db.ObsError,
		Tags:      []string{errorPatternTag},
	}
	hits, err := s.Search(ctx, query, filter, limit)
	if err != nil {
		return nil, err
	}
	var patterns []db.ErrorPattern
	for _, h := range hits {
		var p db.ErrorPattern
		if err := json.Unmarshal([]byte(h.Observation.Content), &p); err != nil {
			continue
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// StoreSessionSummary persists a compiled session summary and mirrors it
// as a summary observation so it participates in recall.
func (s *Service) StoreSessionSummary(ctx context.Context, summary *db.SessionSummary) (string, error) {
	if summary.SessionID == "" {
		return "", xerr.New(xerr.InvalidArgument, "session summary requires a session id")
	}
	if summary.ID == "" {
		summary.ID = ids.NewObservationID().String()
	}
	if summary.CreatedAt == 0 {
		summary.CreatedAt = time.Now().Unix()
	}
	if err := s.store.StoreSessionSummary(ctx, summary); err != nil {
		return "", err
	}

	content := formatSummary(summary)
	meta := db.ObservationMetadata{SessionID: summary.SessionID, Origin: summary.Origin}
	if _, _, err := s.StoreObservation(ctx, summary.ProjectID, content, db.ObsSummary, []string{"session-summary"}, meta); err != nil {
		return "", err
	}
	return summary.ID, nil
}

// GetSessionSummary fetches the compiled summary for a session.
func (s *Service) GetSessionSummary(ctx context.Context, sessionID string) (*db.SessionSummary, error) {
	summary, err := s.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, xerr.New(xerr.NotFound, "no summary for session %s", sessionID)
	}
	return summary, nil
}

func formatSummary(summary *db.SessionSummary) string {
	content := "session " + summary.SessionID
	appendSection := func(name string, items []string) {
		if len(items) == 0 {
			return
		}
		content += "\n" + name + ":"
		for _, item := range items {
			content += "\n- " + item
		}
	}
	appendSection("topics", summary.Topics)
	appendSection("decisions", summary.Decisions)
	appendSection("next steps", summary.NextSteps)
	appendSection("key files", summary.KeyFiles)
	return content
}
