package rag

import (
	"context"
	"fmt"
	"math"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/embedding"
	"faq-rag/internal/models"
)

// VectorIndex is the part of an index the retriever needs.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) ([]float32, []int, error)
	Count() int
}

var _ VectorIndex = (*chromemdb.Index)(nil)

// Search returns up to k chunks most similar to query, best first. Neighbor
// ids outside the chunk list are skipped. When nothing usable remains the
// result is exactly the no-match sentinel.
func Search(ctx context.Context, embedder embedding.Embedder, index VectorIndex, chunks []string, query string, k int) ([]models.RetrievalResult, error) {
	hits, err := searchHits(ctx, embedder, index, chunks, query, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []models.RetrievalResult{models.NoMatchResult}, nil
	}

	results := make([]models.RetrievalResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results, nil
}

type hit struct {
	row    int
	result models.RetrievalResult
}

func searchHits(ctx context.Context, embedder embedding.Embedder, index VectorIndex, chunks []string, query string, k int) ([]hit, error) {
	if k <= 0 {
		k = models.DefaultTopK
	}

	vec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scores, ids, err := index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(scores) != len(ids) {
		return nil, fmt.Errorf("search index: %d scores for %d ids", len(scores), len(ids))
	}

	hits := make([]hit, 0, len(ids))
	for i, id := range ids {
		if id == chromemdb.InvalidID || id < 0 || id >= len(chunks) {
			continue
		}
		if math.IsNaN(float64(scores[i])) {
			continue
		}
		hits = append(hits, hit{row: id, result: models.RetrievalResult{Text: chunks[id], Score: scores[i]}})
	}
	return hits, nil
}
