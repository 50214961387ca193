package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Metadata keys written by ingestion.
const (
	MetadataSection = "section"
	MetadataSource  = "source"
	MetadataIndex   = "index"
)

var (
	// ErrInvalidSection is returned when a section label is not one of beginning, middle or end.
	ErrInvalidSection = errors.New("invalid section")

	// ErrMalformedQuery is returned when the model's structured output cannot be decoded.
	ErrMalformedQuery = errors.New("malformed structured query")

	// ErrEmbeddingMismatch is returned when the number of vectors differs from the number of chunks.
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
)

// Section is the coarse position of a chunk within its source document.
type Section string

const (
	SectionBeginning Section = "beginning"
	SectionMiddle    Section = "middle"
	SectionEnd       Section = "end"
)

// Sections lists every valid section in document order.
var Sections = []Section{SectionBeginning, SectionMiddle, SectionEnd}

// Valid reports whether s is one of the known sections.
func (s Section) Valid() bool {
	switch s {
	case SectionBeginning, SectionMiddle, SectionEnd:
		return true
	}
	return false
}

// ParseSection normalizes and validates a section label.
func ParseSection(s string) (Section, error) {
	section := Section(strings.ToLower(strings.TrimSpace(s)))
	if !section.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSection, s)
	}
	return section, nil
}

// SectionFor labels the chunk at index within a sequence of total chunks.
// With third = total/3, indexes below third are the beginning, indexes below
// 2*third the middle, and everything else the end.
func SectionFor(index, total int) Section {
	third := total / 3
	switch {
	case index < third:
		return SectionBeginning
	case index < 2*third:
		return SectionMiddle
	default:
		return SectionEnd
	}
}

// Chunk is a contiguous span of source text stored with an embedding.
type Chunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Score is the similarity to the query, set by searches.
	Score float64 `json:"score,omitempty"`
}

// Section returns the chunk's section label, or "" if it has none.
func (c Chunk) Section() Section {
	switch v := c.Metadata[MetadataSection].(type) {
	case Section:
		return v
	case string:
		return Section(v)
	}
	return ""
}

// Source returns the chunk's source metadata as a string.
func (c Chunk) Source() string {
	if v, ok := c.Metadata[MetadataSource]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// StructuredQuery is the search request produced from a free-text question.
type StructuredQuery struct {
	Query   string  `json:"query"`
	Section Section `json:"section"`
}

// Filter returns the metadata filter for the query; nil means unfiltered.
func (q *StructuredQuery) Filter() map[string]any {
	if q == nil || q.Section == "" {
		return nil
	}
	return map[string]any{MetadataSection: string(q.Section)}
}

// State is the per-request record that flows through the pipeline.
type State struct {
	Question string           `json:"question"`
	Query    *StructuredQuery `json:"query,omitempty"`
	Context  []Chunk          `json:"context,omitempty"`
	Answer   string           `json:"answer,omitempty"`
}

// Sources returns the distinct sources of the context chunks, in order.
func (s State) Sources() []string {
	seen := make(map[string]bool)
	var sources []string
	for _, c := range s.Context {
		src := c.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return sources
}

// Embedder turns text into vectors. langchaingo's embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore stores chunks with their embeddings and answers similarity searches.
type VectorStore interface {
	// Upsert writes chunks with their vectors; vectors[i] belongs to chunks[i].
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// SimilaritySearch returns up to k chunks ordered by descending similarity.
	// Only chunks whose metadata equals every filter entry are considered.
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Chunk, error)

	// DeleteCollection removes the collection and everything in it.
	DeleteCollection(ctx context.Context) error

	// CreateCollection prepares an empty collection.
	CreateCollection(ctx context.Context) error
}

// MatchesFilter reports whether metadata contains every key/value of filter.
// Values are compared by their string form so Section and string compare equal.
func MatchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
