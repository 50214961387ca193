// Package retriever runs section-filtered similarity searches.
package retriever

import (
	"context"
	"fmt"

	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/callbacks"
)

// DefaultK is the number of chunks returned when no k is configured.
const DefaultK = 4

// Retriever embeds a structured query and searches a vector store with it.
type Retriever struct {
	embedder rag.Embedder
	store    rag.VectorStore
	k        int
	handler  callbacks.Handler
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithK sets how many chunks to return.
func WithK(k int) Option {
	return func(r *Retriever) {
		r.k = k
	}
}

// WithCallbacks reports retrieval start and end to handler.
func WithCallbacks(handler callbacks.Handler) Option {
	return func(r *Retriever) {
		r.handler = handler
	}
}

// New creates a Retriever returning DefaultK chunks.
func New(embedder rag.Embedder, store rag.VectorStore, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, store: store, k: DefaultK}
	for _, opt := range opts {
		opt(r)
	}
	if r.k <= 0 {
		r.k = DefaultK
	}
	return r
}

// K returns the configured result size.
func (r *Retriever) K() int {
	return r.k
}

// Retrieve returns up to k chunks most similar to q.Query, most similar first.
// When q has a section only chunks of that section are returned; an empty
// section searches the whole collection.
func (r *Retriever) Retrieve(ctx context.Context, q *rag.StructuredQuery) ([]rag.Chunk, error) {
	if q == nil {
		return nil, fmt.Errorf("retrieve: nil query")
	}
	if q.Section != "" && !q.Section.Valid() {
		return nil, fmt.Errorf("retrieve: %w: %q", rag.ErrInvalidSection, q.Section)
	}

	if r.handler != nil {
		r.handler.HandleRetrieverStart(ctx, q.Query)
	}

	vector, err := r.embedder.EmbedQuery(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}

	chunks, err := r.store.SimilaritySearch(ctx, vector, r.k, q.Filter())
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}

	if q.Section != "" {
		chunks = keepSection(chunks, q.Section)
	}

	if r.handler != nil {
		r.handler.HandleRetrieverEnd(ctx, q.Query, rag.ToDocuments(chunks))
	}
	return chunks, nil
}

// keepSection drops chunks from other sections, preserving order.
func keepSection(chunks []rag.Chunk, section rag.Section) []rag.Chunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if c.Section() == section {
			kept = append(kept, c)
		}
	}
	return kept
}
