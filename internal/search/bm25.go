package search

import (
	"context"
	"math"
	"sort"
	"strings"
)

// BM25 parameters, standard Okapi values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75

	// semanticWeight blends vector similarity with the normalised BM25
	// score during hybrid reranking.
	semanticWeight = 0.7
)

// BM25Reranker scores the candidate contents lexically against the query
// and reorders by a weighted blend of semantic and lexical scores. It never
// adds results, only reorders and prunes.
type BM25Reranker struct{}

// NewBM25Reranker returns the lexical hybrid reranker.
func NewBM25Reranker() *BM25Reranker { return &BM25Reranker{} }

func (r *BM25Reranker) Rerank(_ context.Context, query string, results []Result, limit int) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		if len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}

	docs := make([][]string, len(results))
	totalLen := 0
	for i, res := range results {
		docs[i] = tokenize(res.Content)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		avgLen = 1
	}

	// Document frequency per query term.
	df := make(map[string]int, len(queryTerms))
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, term := range doc {
			seen[term] = true
		}
		for _, term := range queryTerms {
			if seen[term] {
				df[term]++
			}
		}
	}

	n := float64(len(docs))
	lexical := make([]float64, len(docs))
	maxLexical := 0.0
	for i, doc := range docs {
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		var score float64
		for _, term := range queryTerms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			norm := f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*float64(len(doc))/avgLen))
			score += idf * norm
		}
		lexical[i] = score
		if score > maxLexical {
			maxLexical = score
		}
	}

	type ranked struct {
		result Result
		score  float64
	}
	out := make([]ranked, len(results))
	for i, res := range results {
		lex := 0.0
		if maxLexical > 0 {
			lex = lexical[i] / maxLexical
		}
		out[i] = ranked{
			result: res,
			score:  semanticWeight*float64(res.Score) + (1-semanticWeight)*lex,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })

	if len(out) > limit {
		out = out[:limit]
	}
	reranked := make([]Result, len(out))
	for i, r := range out {
		reranked[i] = r.result
	}
	return reranked, nil
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
}
