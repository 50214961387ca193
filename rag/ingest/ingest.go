// Package ingest loads a source into the vector store: the collection is
// reset, the source is loaded, split, tagged by section, embedded and upserted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/loader"
	"github.com/smallnest/ragchat/rag/splitter"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 32

// ErrNoContent is returned when a source yields no chunks.
var ErrNoContent = errors.New("source has no content")

// Report summarizes one ingest run.
type Report struct {
	Source   string              `json:"source"`
	Chunks   int                 `json:"chunks"`
	Sections map[rag.Section]int `json:"sections"`
	Duration time.Duration       `json:"duration"`
}

// Ingester writes sources into a vector store.
type Ingester struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	splitter  *splitter.Splitter
	loaderFor func(source string) rag.Loader
	batchSize int
	logger    log.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithSplitter replaces the default 1000/200 splitter.
func WithSplitter(s *splitter.Splitter) Option {
	return func(i *Ingester) {
		i.splitter = s
	}
}

// WithLoaderFunc overrides how a source string becomes a loader.
func WithLoaderFunc(fn func(source string) rag.Loader) Option {
	return func(i *Ingester) {
		i.loaderFor = fn
	}
}

// WithHTTPClient sets the client used to fetch web sources.
func WithHTTPClient(client *http.Client) Option {
	return func(i *Ingester) {
		i.loaderFor = func(source string) rag.Loader {
			return loader.New(source, client)
		}
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(n int) Option {
	return func(i *Ingester) {
		i.batchSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(i *Ingester) {
		i.logger = logger
	}
}

// New creates an Ingester.
func New(embedder rag.Embedder, store rag.VectorStore, opts ...Option) (*Ingester, error) {
	i := &Ingester{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		loaderFor: func(source string) rag.Loader {
			return loader.New(source, nil)
		},
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.embedder == nil || i.store == nil {
		return nil, fmt.Errorf("embedder and store are required")
	}
	if i.splitter == nil {
		s, err := splitter.New()
		if err != nil {
			return nil, err
		}
		i.splitter = s
	}
	if i.batchSize <= 0 {
		i.batchSize = DefaultBatchSize
	}
	return i, nil
}

// Ingest replaces the collection's contents with the chunks of source.
// Errors name the step that failed.
func (i *Ingester) Ingest(ctx context.Context, source string) (*Report, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("ingest: empty source")
	}
	logger := log.OrDefault(i.logger)
	start := time.Now()

	if err := i.store.DeleteCollection(ctx); err != nil {
		return nil, fmt.Errorf("ingest: delete collection: %w", err)
	}
	if err := i.store.CreateCollection(ctx); err != nil {
		return nil, fmt.Errorf("ingest: create collection: %w", err)
	}

	docs, err := i.loaderFor(source).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: load %s: %w", source, err)
	}
	logger.Debug("ingest: loaded %d documents from %s", len(docs), source)

	chunks, err := i.splitter.Split(docs)
	if err != nil {
		return nil, fmt.Errorf("ingest: split: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest: split: %w: %s", ErrNoContent, source)
	}

	vectors, err := i.embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingest: embed: %w", err)
	}

	if err := i.store.Upsert(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("ingest: upsert: %w", err)
	}

	report := &Report{
		Source:   source,
		Chunks:   len(chunks),
		Sections: splitter.Counts(chunks),
		Duration: time.Since(start),
	}
	logger.Info("ingest: %s -> %d chunks (beginning=%d middle=%d end=%d) in %s",
		source, report.Chunks,
		report.Sections[rag.SectionBeginning], report.Sections[rag.SectionMiddle], report.Sections[rag.SectionEnd],
		report.Duration)
	return report, nil
}

func (i *Ingester) embed(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))

		texts := make([]string, end-start)
		for j, c := range chunks[start:end] {
			texts[j] = c.Content
		}

		batch, err := i.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d chunks", rag.ErrEmbeddingMismatch, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
