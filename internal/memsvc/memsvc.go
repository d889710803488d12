// Package memsvc implements observation memory: deduplicated writes,
// hybrid semantic+lexical recall, timelines, and the structured overlays
// for quality gates, execution results, and error patterns.
package memsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/db"
	"github.com/mcbridge/mcbridge/internal/ids"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

const (
	// previewLength bounds observation previews in search results.
	previewLength = 200

	// rrfK is the reciprocal-rank-fusion constant.
	rrfK = 60

	// candidateMultiplier widens both recall legs before fusion.
	candidateMultiplier = 3
)

// Service is the observation memory service.
type Service struct {
	store      *db.DB
	embedder   contextsvc.Embedder
	vectors    providers.VectorStore
	collection string
}

// New wires the memory service. collection names the vector collection
// that backs semantic recall.
func New(store *db.DB, embedder contextsvc.Embedder, vectors providers.VectorStore, collection string) *Service {
	return &Service{store: store, embedder: embedder, vectors: vectors, collection: collection}
}

// EnsureCollection creates the memory vector collection if missing.
func (s *Service) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.vectors.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.vectors.CreateCollection(ctx, s.collection, dims)
}

// StoreObservation writes an observation, deduplicating on
// (project, content_hash). A duplicate returns the existing id with
// deduplicated=true and changes nothing.
func (s *Service) StoreObservation(ctx context.Context, projectID, content string, typ db.ObservationType, tags []string, meta db.ObservationMetadata) (string, bool, error) {
	if content == "" {
		return "", false, xerr.New(xerr.InvalidArgument, "observation content cannot be empty")
	}
	if _, ok := db.ParseObservationType(string(typ)); !ok {
		return "", false, xerr.New(xerr.InvalidArgument,
			"unknown observation type %q, valid: %v", typ, db.ValidObservationTypes)
	}

	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	existing, err := s.store.FindObservationByHash(ctx, projectID, contentHash)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.ID, true, nil
	}

	id := ids.NewObservationID().String()

	// Vector first, then the row: hybrid recall finds the observation as
	// soon as the relational write lands. A relational failure leaves an
	// orphan vector, which is tolerated.
	embeddingID, err := s.insertVector(ctx, id, content, contentHash, typ, tags, meta)
	if err != nil {
		return "", false, err
	}

	obs := &db.Observation{
		ID:          id,
		ProjectID:   projectID,
		Content:     content,
		ContentHash: contentHash,
		Type:        typ,
		Tags:        tags,
		Metadata:    meta,
		CreatedAt:   time.Now().Unix(),
		EmbeddingID: embeddingID,
	}
	if err := s.store.InsertObservation(ctx, obs); err != nil {
		// Benign race: another writer landed the same content first.
		if xerr.IsKind(err, xerr.Conflict) {
			if winner, lookupErr := s.store.FindObservationByHash(ctx, projectID, contentHash); lookupErr == nil && winner != nil {
				return winner.ID, true, nil
			}
		}
		return "", false, err
	}
	return id, false, nil
}

func (s *Service) insertVector(ctx context.Context, obsID, content, contentHash string, typ db.ObservationType, tags []string, meta db.ObservationMetadata) (string, error) {
	embeddings, err := s.embedder.EmbedBatch(ctx, []string{content})
	if err != nil {
		return "", xerr.Wrap(xerr.Embedding, err, "embed observation")
	}

	tagsJSON, _ := json.Marshal(tags)
	vecMeta := map[string]string{
		"observation_id": obsID,
		"content_hash":   contentHash,
		"type":           string(typ),
		"tags":           string(tagsJSON),
		"session_id":     meta.SessionID,
		"repo_id":        meta.RepoID,
		"branch":         meta.Branch,
		"commit":         meta.Commit,
		"file_path":      meta.FilePath,
	}
	vectorIDs, err := s.vectors.InsertVectors(ctx, s.collection, embeddings, []map[string]string{vecMeta})
	if err != nil {
		return "", err
	}
	return vectorIDs[0], nil
}

// Hit is one memory recall result.
type Hit struct {
	Observation *db.Observation `json:"observation"`
	Preview     string          `json:"preview"`
	Score       float32         `json:"score"` // 0 for relational-only recall
}

// Search combines semantic recall with the relational filter. An empty
// query degrades to a relational-only listing ordered by recency.
func (s *Service) Search(ctx context.Context, query string, filter *db.MemoryFilter, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if query == "" {
		obs, err := s.store.ListObservations(ctx, filter, limit)
		if err != nil {
			return nil, err
		}
		hits := make([]Hit, len(obs))
		for i, o := range obs {
			hits[i] = Hit{Observation: o, Preview: Preview(o.Content)}
		}
		return hits, nil
	}

	candidates := limit * candidateMultiplier

	vectorRanks, err := s.vectorRecall(ctx, query, candidates)
	if err != nil {
		// Semantic recall is best-effort; lexical recall still works.
		slog.Warn("vector recall failed, continuing lexical-only", "error", err)
		vectorRanks = nil
	}

	projectID := ""
	if filter != nil {
		projectID = filter.ProjectID
	}
	ftsHits, err := s.store.SearchObservationsFTS(ctx, query, projectID, candidates)
	if err != nil {
		return nil, err
	}
	ftsRanks := make(map[string]int, len(ftsHits))
	for i, h := range ftsHits {
		ftsRanks[h.ID] = i + 1
	}

	fused := fuseRRF(vectorRanks, ftsRanks)

	idList := make([]string, 0, len(fused))
	for id := range fused {
		idList = append(idList, id)
	}
	observations, err := s.store.GetObservationsByIDs(ctx, idList)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, o := range observations {
		if filter != nil && !filter.Matches(o) {
			continue
		}
		hits = append(hits, Hit{Observation: o, Preview: Preview(o.Content), Score: fused[o.ID]})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Observation.CreatedAt != hits[j].Observation.CreatedAt {
			return hits[i].Observation.CreatedAt > hits[j].Observation.CreatedAt
		}
		return hits[i].Observation.ID < hits[j].Observation.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// vectorRecall returns observation id -> rank (1-based) from the vector leg.
func (s *Service) vectorRecall(ctx context.Context, query string, limit int) (map[string]int, error) {
	embeddings, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	results, err := s.vectors.SearchSimilar(ctx, s.collection, embeddings[0].Vector, limit)
	if err != nil {
		return nil, err
	}
	ranks := make(map[string]int, len(results))
	for i, r := range results {
		obsID := r.Metadata["observation_id"]
		if obsID == "" {
			continue
		}
		if _, seen := ranks[obsID]; !seen {
			ranks[obsID] = i + 1
		}
	}
	return ranks, nil
}

// fuseRRF merges two rank lists with reciprocal rank fusion. The fused
// score is normalised by the best attainable value (rank 1 in both legs)
// and capped at 1.
func fuseRRF(vectorRanks, ftsRanks map[string]int) map[string]float32 {
	maxScore := 2.0 / float64(rrfK+1)
	out := make(map[string]float32, len(vectorRanks)+len(ftsRanks))

	accumulate := func(ranks map[string]int) {
		for id, rank := range ranks {
			out[id] += float32((1.0 / float64(rrfK+rank)) / maxScore)
		}
	}
	accumulate(vectorRanks)
	accumulate(ftsRanks)

	for id, score := range out {
		if score > 1 {
			out[id] = 1
		}
	}
	return out
}

// Timeline returns the observation window around an anchor, ascending by
// created_at with ties broken by id. The anchor is included.
func (s *Service) Timeline(ctx context.Context, anchorID string, before, after int, filter *db.MemoryFilter) ([]Hit, error) {
	observations, err := s.store.Timeline(ctx, anchorID, before, after, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(observations))
	for i, o := range observations {
		hits[i] = Hit{Observation: o, Preview: Preview(o.Content)}
	}
	return hits, nil
}

// Get fetches one observation with its full, untruncated content.
func (s *Service) Get(ctx context.Context, id string) (*db.Observation, error) {
	obs, err := s.store.GetObservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, xerr.New(xerr.NotFound, "observation %s", id)
	}
	return obs, nil
}

// List returns observations matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter *db.MemoryFilter, limit int) ([]*db.Observation, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListObservations(ctx, filter, limit)
}

// Delete logically deletes an observation.
func (s *Service) Delete(ctx context.Context, id string) error {
	obs, err := s.store.GetObservation(ctx, id)
	if err != nil {
		return err
	}
	if obs == nil {
		return xerr.New(xerr.NotFound, "observation %s", id)
	}
	if err := s.store.DeleteObservation(ctx, id); err != nil {
		return err
	}
	if obs.EmbeddingID != "" {
		if err := s.vectors.DeleteVectors(ctx, s.collection, []string{obs.EmbeddingID}); err != nil {
			slog.Warn("deleting observation vector failed", "observation", id, "error", err)
		}
	}
	return nil
}

// Preview truncates content for display in search results.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "…"
}
