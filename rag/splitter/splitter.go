// Package splitter chunks loaded documents and labels each chunk with its
// section. Splitting is delegated to langchaingo's recursive character
// splitter; chunk length is measured in runes.
package splitter

import (
	"fmt"

	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter splits documents into overlapping chunks and tags their section.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets how many characters consecutive chunks may share.
func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators overrides the separators tried in order.
func WithSeparators(separators []string) Option {
	return func(s *Splitter) {
		s.separators = separators
	}
}

// New creates a Splitter with 1000 character chunks and 200 characters of overlap.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   []string{"\n\n", "\n", " ", ""},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", s.chunkSize)
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", s.chunkSize, s.chunkOverlap)
	}
	return s, nil
}

func (s *Splitter) textSplitter() textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
		textsplitter.WithSeparators(s.separators),
	)
}

// SplitText splits a single text into chunk strings.
func (s *Splitter) SplitText(text string) ([]string, error) {
	return s.textSplitter().SplitText(text)
}

// Split splits docs into chunks in document order and tags each one.
// Chunks inherit the metadata of their document and gain "section" and
// "index" entries. Sections are assigned across the whole sequence, not per
// document.
func (s *Splitter) Split(docs []schema.Document) ([]rag.Chunk, error) {
	split, err := textsplitter.SplitDocuments(s.textSplitter(), docs)
	if err != nil {
		return nil, fmt.Errorf("split documents: %w", err)
	}

	chunks := rag.ChunksFromDocuments(split)
	Tag(chunks)
	return chunks, nil
}

// Tag sets the section and index metadata of every chunk from its position.
func Tag(chunks []rag.Chunk) {
	total := len(chunks)
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		chunks[i].Metadata[rag.MetadataSection] = string(rag.SectionFor(i, total))
		chunks[i].Metadata[rag.MetadataIndex] = i
	}
}

// Counts returns the number of chunks per section.
func Counts(chunks []rag.Chunk) map[rag.Section]int {
	counts := make(map[rag.Section]int, len(rag.Sections))
	for _, c := range chunks {
		counts[c.Section()]++
	}
	return counts
}
