// Package search serves semantic code search over indexed collections,
// with optional in-memory filtering and hybrid reranking.
package search

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/mcbridge/mcbridge/internal/contextsvc"
	"github.com/mcbridge/mcbridge/internal/providers"
	"github.com/mcbridge/mcbridge/internal/xerr"
)

// overFetchMultiplier widens the vector-store query when filters may drop
// results.
const overFetchMultiplier = 3

// Result is one search hit. Score is similarity in [0, 1].
type Result struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
	Language  string  `json:"language"`
}

// Filters narrows results after the vector query. Absent fields disable
// that axis.
type Filters struct {
	MinScore       *float32 `json:"min_score,omitempty"`
	FileExtensions []string `json:"file_extensions,omitempty"`
	Languages      []string `json:"languages,omitempty"`
}

func (f *Filters) empty() bool {
	return f == nil || (f.MinScore == nil && len(f.FileExtensions) == 0 && len(f.Languages) == 0)
}

// Hybrid reorders or prunes semantic results using the raw query. It must
// not fabricate result ids.
type Hybrid interface {
	Rerank(ctx context.Context, query string, results []Result, limit int) ([]Result, error)
}

// Service executes searches against the context service.
type Service struct {
	ctxsvc *contextsvc.Service
	hybrid Hybrid // nil disables hybrid mode
}

// NewService builds the search service. hybrid may be nil.
func NewService(ctxsvc *contextsvc.Service, hybrid Hybrid) *Service {
	return &Service{ctxsvc: ctxsvc, hybrid: hybrid}
}

// Search is SearchWithFilters without filters.
func (s *Service) Search(ctx context.Context, collection, query string, limit int) ([]Result, error) {
	return s.SearchWithFilters(ctx, collection, query, limit, nil)
}

// SearchWithFilters embeds the query, over-fetches when filters are
// present, applies filters in memory, and returns at most limit results in
// vector-store order (or hybrid order when a hybrid provider is set).
func (s *Service) SearchWithFilters(ctx context.Context, collection, query string, limit int, filters *Filters) ([]Result, error) {
	// A literal empty query is a valid no-op; whitespace is a caller bug.
	if query == "" {
		return []Result{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, xerr.New(xerr.InvalidArgument, "query cannot be blank")
	}
	if limit <= 0 {
		limit = 10
	}

	fetch := limit
	if !filters.empty() {
		fetch = limit * overFetchMultiplier
	}

	started := time.Now()
	hits, err := s.ctxsvc.SearchSimilar(ctx, collection, query, fetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, fromHit(hit))
	}
	results = applyFilters(results, filters)
	if len(results) > limit {
		results = results[:limit]
	}

	if s.hybrid != nil {
		results, err = s.hybrid.Rerank(ctx, query, results, limit)
		if err != nil {
			return nil, err
		}
	}

	slog.Debug("search completed",
		"collection", collection, "results", len(results), "duration", time.Since(started))
	return results, nil
}

func fromHit(hit providers.SearchResult) Result {
	start, _ := strconv.Atoi(hit.Metadata[contextsvc.MetaStartLine])
	end, _ := strconv.Atoi(hit.Metadata[contextsvc.MetaEndLine])
	return Result{
		ID:        hit.ID,
		Content:   hit.Metadata[contextsvc.MetaContent],
		FilePath:  hit.Metadata[contextsvc.MetaFilePath],
		StartLine: start,
		EndLine:   end,
		Score:     hit.Score,
		Language:  hit.Metadata[contextsvc.MetaLanguage],
	}
}

// applyFilters drops results in the fixed order: min_score, extensions,
// languages. Ordering of survivors is preserved.
func applyFilters(results []Result, f *Filters) []Result {
	if f.empty() {
		return results
	}

	out := results[:0]
	for _, r := range results {
		if f.MinScore != nil && r.Score < *f.MinScore {
			continue
		}
		if len(f.FileExtensions) > 0 && !matchesExtension(r.FilePath, f.FileExtensions) {
			continue
		}
		if len(f.Languages) > 0 && !containsFold(f.Languages, r.Language) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesExtension(filePath string, extensions []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
	for _, want := range extensions {
		if strings.ToLower(strings.TrimPrefix(want, ".")) == ext {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
