// Package memory provides an in-process HistoryStore.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/smallnest/ragchat/store"
)

// MemoryHistoryStore keeps exchanges in a map.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	exchanges map[string]*store.Exchange
}

var _ store.HistoryStore = (*MemoryHistoryStore)(nil)

// NewMemoryHistoryStore creates an empty store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{exchanges: make(map[string]*store.Exchange)}
}

func clone(ex *store.Exchange) *store.Exchange {
	c := *ex
	c.Sources = slices.Clone(ex.Sources)
	if ex.Query != nil {
		q := *ex.Query
		c.Query = &q
	}
	return &c
}

// Save stores a copy of exchange.
func (s *MemoryHistoryStore) Save(_ context.Context, exchange *store.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[exchange.ID] = clone(exchange)
	return nil
}

// Load returns a copy of the exchange with id.
func (s *MemoryHistoryStore) Load(_ context.Context, id string) (*store.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.exchanges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return clone(ex), nil
}

// List returns the newest exchanges first.
func (s *MemoryHistoryStore) List(_ context.Context, limit int) ([]*store.Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*store.Exchange, 0, len(s.exchanges))
	for _, ex := range s.exchanges {
		all = append(all, clone(ex))
	}
	slices.SortFunc(all, func(a, b *store.Exchange) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit = store.Limit(limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Delete removes the exchange with id.
func (s *MemoryHistoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exchanges, id)
	return nil
}

// Clear removes every exchange.
func (s *MemoryHistoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = make(map[string]*store.Exchange)
	return nil
}
