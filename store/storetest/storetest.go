// Package storetest checks HistoryStore implementations against the
// behaviour every backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exchange returns a populated exchange created at base plus offset.
func Exchange(id string, base time.Time, offset time.Duration) *store.Exchange {
	return &store.Exchange{
		ID:        id,
		Question:  "question " + id,
		Query:     &rag.StructuredQuery{Query: "query " + id, Section: rag.SectionMiddle},
		Answer:    "answer " + id,
		Outcome:   "streamed",
		Sources:   []string{"https://example.com/post"},
		CreatedAt: base.Add(offset).UTC(),
	}
}

// Run exercises s. The store must start empty.
func Run(t *testing.T, s store.HistoryStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := Exchange("ex-1", base, 0)
	second := Exchange("ex-2", base, time.Minute)
	third := Exchange("ex-3", base, 2*time.Minute)
	third.Query = nil
	third.Sources = nil

	for _, ex := range []*store.Exchange{first, second, third} {
		require.NoError(t, s.Save(ctx, ex))
	}

	loaded, err := s.Load(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, first.Question, loaded.Question)
	assert.Equal(t, first.Answer, loaded.Answer)
	assert.Equal(t, first.Outcome, loaded.Outcome)
	assert.Equal(t, first.Sources, loaded.Sources)
	require.NotNil(t, loaded.Query)
	assert.Equal(t, *first.Query, *loaded.Query)
	assert.True(t, first.CreatedAt.Equal(loaded.CreatedAt))

	loaded, err = s.Load(ctx, "ex-3")
	require.NoError(t, err)
	assert.Nil(t, loaded.Query)
	assert.Empty(t, loaded.Sources)

	_, err = s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ex-3", list[0].ID)
	assert.Equal(t, "ex-2", list[1].ID)

	list, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	second.Answer = "revised"
	require.NoError(t, s.Save(ctx, second))
	loaded, err = s.Load(ctx, "ex-2")
	require.NoError(t, err)
	assert.Equal(t, "revised", loaded.Answer)

	require.NoError(t, s.Delete(ctx, "ex-2"))
	_, err = s.Load(ctx, "ex-2")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.Clear(ctx))
	list, err = s.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}
