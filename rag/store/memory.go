package store

import (
	"context"
	"maps"
	"sync"

	"github.com/smallnest/ragchat/rag"
)

// MemoryStore is an in-process vector store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int
}

var _ rag.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

// Upsert adds chunks, replacing any with the same ID. Chunks without an ID get one.
func (s *MemoryStore) Upsert(_ context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if err := validateUpsert(chunks, vectors); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		c.ID = chunkID(c)
		c.Metadata = maps.Clone(c.Metadata)
		c.Score = 0
		e := entry{chunk: c, vector: vectors[i]}

		if pos, ok := s.index[c.ID]; ok {
			s.entries[pos] = e
			continue
		}
		s.index[c.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// SimilaritySearch ranks stored chunks against vector.
func (s *MemoryStore) SimilaritySearch(_ context.Context, vector []float32, k int, filter map[string]any) ([]rag.Chunk, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return rank(s.entries, vector, k, filter), nil
}

// DeleteCollection drops every chunk.
func (s *MemoryStore) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.index = make(map[string]int)
	return nil
}

// CreateCollection is a no-op; the store is always ready.
func (s *MemoryStore) CreateCollection(_ context.Context) error {
	return nil
}

// Len returns the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
