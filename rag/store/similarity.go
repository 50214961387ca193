package store

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/smallnest/ragchat/rag"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type entry struct {
	chunk  rag.Chunk
	vector []float32
}

// rank scores candidates against query and returns the k best, most similar first.
// Ties keep insertion order.
func rank(candidates []entry, query []float32, k int, filter map[string]any) []rag.Chunk {
	scored := make([]rag.Chunk, 0, len(candidates))
	for _, e := range candidates {
		if !rag.MatchesFilter(e.chunk.Metadata, filter) {
			continue
		}
		c := e.chunk
		c.Metadata = maps.Clone(c.Metadata)
		c.Score = CosineSimilarity(query, e.vector)
		scored = append(scored, c)
	}

	slices.SortStableFunc(scored, func(a, b rag.Chunk) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func validateUpsert(chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", rag.ErrEmbeddingMismatch, len(chunks), len(vectors))
	}
	return nil
}

func validateK(k int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	return nil
}

func chunkID(c rag.Chunk) string {
	if c.ID != "" {
		return c.ID
	}
	return uuid.NewString()
}
