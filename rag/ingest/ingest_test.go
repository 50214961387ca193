package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/ragtest"
	"github.com/smallnest/ragchat/rag/splitter"
	"github.com/smallnest/ragchat/rag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

type staticLoader struct {
	docs []schema.Document
	err  error
}

func (l staticLoader) Load(context.Context) ([]schema.Document, error) {
	return l.docs, l.err
}

func loaderOf(docs ...schema.Document) Option {
	return WithLoaderFunc(func(string) rag.Loader {
		return staticLoader{docs: docs}
	})
}

// nineLines produces a document that splits into nine one-line chunks at size 6.
func nineLines() schema.Document {
	lines := make([]string, 9)
	for i := range lines {
		lines[i] = fmt.Sprintf("line%d", i)
	}
	return schema.Document{PageContent: strings.Join(lines, "\n"), Metadata: map[string]any{rag.MetadataSource: "notes"}}
}

func newSplitter(t *testing.T) *splitter.Splitter {
	t.Helper()
	s, err := splitter.New(splitter.WithChunkSize(6), splitter.WithChunkOverlap(0), splitter.WithSeparators([]string{"\n"}))
	require.NoError(t, err)
	return s
}

func TestIngest(t *testing.T) {
	s := store.NewMemoryStore()
	ing, err := New(ragtest.NewEmbedder(64), s,
		WithSplitter(newSplitter(t)), loaderOf(nineLines()), WithBatchSize(4), WithLogger(&log.NoOpLogger{}))
	require.NoError(t, err)

	report, err := ing.Ingest(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", report.Source)
	assert.Equal(t, 9, report.Chunks)
	assert.Equal(t, map[rag.Section]int{
		rag.SectionBeginning: 3,
		rag.SectionMiddle:    3,
		rag.SectionEnd:       3,
	}, report.Sections)
	assert.Equal(t, 9, s.Len())
}

func TestIngestResetsCollection(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Upsert(context.Background(), []rag.Chunk{{ID: "stale", Content: "old"}}, [][]float32{make([]float32, 64)}))

	ing, err := New(ragtest.NewEmbedder(64), s, WithSplitter(newSplitter(t)), loaderOf(nineLines()))
	require.NoError(t, err)

	_, err = ing.Ingest(context.Background(), "notes")
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), "notes")
	require.NoError(t, err)
	assert.Equal(t, 9, s.Len())
}

func TestIngestSectionsFilterable(t *testing.T) {
	embedder := ragtest.NewEmbedder(1024)
	s := store.NewMemoryStore()
	ing, err := New(embedder, s, WithSplitter(newSplitter(t)), loaderOf(nineLines()))
	require.NoError(t, err)
	_, err = ing.Ingest(context.Background(), "notes")
	require.NoError(t, err)

	vector, err := embedder.EmbedQuery(context.Background(), "line4")
	require.NoError(t, err)
	chunks, err := s.SimilaritySearch(context.Background(), vector, 10, map[string]any{rag.MetadataSection: "middle"})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, rag.SectionMiddle, c.Section())
		assert.Equal(t, "notes", c.Source())
	}
	assert.Equal(t, "line4", chunks[0].Content)
}

func TestIngestFewChunksAreEnd(t *testing.T) {
	s := store.NewMemoryStore()
	ing, err := New(ragtest.NewEmbedder(64), s, loaderOf(schema.Document{PageContent: "short text"}))
	require.NoError(t, err)

	report, err := ing.Ingest(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, map[rag.Section]int{rag.SectionEnd: 1}, report.Sections)
}

type shortEmbedder struct {
	*ragtest.Embedder
}

func (e shortEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	return vectors[:len(vectors)-1], nil
}

type failingStore struct {
	*store.MemoryStore
	deleteErr error
	upsertErr error
}

func (s failingStore) DeleteCollection(ctx context.Context) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.DeleteCollection(ctx)
}

func (s failingStore) Upsert(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.MemoryStore.Upsert(ctx, chunks, vectors)
}

func TestIngestErrorsNameTheStep(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		embedder rag.Embedder
		store    rag.VectorStore
		loader   staticLoader
		step     string
		target   error
	}{
		{
			name:     "delete",
			embedder: ragtest.NewEmbedder(8),
			store:    failingStore{MemoryStore: store.NewMemoryStore(), deleteErr: boom},
			loader:   staticLoader{docs: []schema.Document{nineLines()}},
			step:     "delete collection",
			target:   boom,
		},
		{
			name:     "load",
			embedder: ragtest.NewEmbedder(8),
			store:    store.NewMemoryStore(),
			loader:   staticLoader{err: boom},
			step:     "load",
			target:   boom,
		},
		{
			name:     "empty",
			embedder: ragtest.NewEmbedder(8),
			store:    store.NewMemoryStore(),
			loader:   staticLoader{},
			step:     "split",
			target:   ErrNoContent,
		},
		{
			name:     "embed",
			embedder: &ragtest.Embedder{Dimensions: 8, Err: boom},
			store:    store.NewMemoryStore(),
			loader:   staticLoader{docs: []schema.Document{nineLines()}},
			step:     "embed",
			target:   boom,
		},
		{
			name:     "embedding count",
			embedder: shortEmbedder{ragtest.NewEmbedder(8)},
			store:    store.NewMemoryStore(),
			loader:   staticLoader{docs: []schema.Document{nineLines()}},
			step:     "embed",
			target:   rag.ErrEmbeddingMismatch,
		},
		{
			name:     "upsert",
			embedder: ragtest.NewEmbedder(8),
			store:    failingStore{MemoryStore: store.NewMemoryStore(), upsertErr: boom},
			loader:   staticLoader{docs: []schema.Document{nineLines()}},
			step:     "upsert",
			target:   boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.loader
			ing, err := New(tt.embedder, tt.store, WithSplitter(newSplitter(t)),
				WithLoaderFunc(func(string) rag.Loader { return l }))
			require.NoError(t, err)

			_, err = ing.Ingest(context.Background(), "notes")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), "ingest: "+tt.step)
		})
	}
}

func TestIngestEmptySource(t *testing.T) {
	ing, err := New(ragtest.NewEmbedder(8), store.NewMemoryStore())
	require.NoError(t, err)

	_, err = ing.Ingest(context.Background(), "  ")
	assert.Error(t, err)
}

func TestIngestDefaultLoaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1 class="post-title">LLM Powered Autonomous Agents</h1>
			<div class="post-content"><p>Task decomposition splits goals.</p></div>
			<div class="sidebar">ignored</div>
		</body></html>`)
	}))
	defer srv.Close()

	s := store.NewMemoryStore()
	ing, err := New(ragtest.NewEmbedder(64), s, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	report, err := ing.Ingest(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)

	vector, _ := ragtest.NewEmbedder(64).EmbedQuery(context.Background(), "task decomposition")
	chunks, err := s.SimilaritySearch(context.Background(), vector, 1, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Task decomposition splits goals.")
	assert.NotContains(t, chunks[0].Content, "ignored")
	assert.Equal(t, srv.URL, chunks[0].Source())

	path := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ\n\nThe registrar opens at **9am**.\n"), 0o600))

	report, err = ing.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)
	assert.Equal(t, 1, s.Len())
}
