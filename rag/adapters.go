package rag

import (
	"context"
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/schema"
)

// Loader loads source documents. langchaingo's documentloaders.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context) ([]schema.Document, error)
}

// ChunksFromDocuments converts langchaingo documents into chunks, copying metadata.
// Chunk IDs are taken from the "id" metadata key when present.
func ChunksFromDocuments(docs []schema.Document) []Chunk {
	chunks := make([]Chunk, len(docs))
	for i, doc := range docs {
		metadata := make(map[string]any, len(doc.Metadata))
		maps.Copy(metadata, doc.Metadata)

		chunks[i] = Chunk{
			Content:  doc.PageContent,
			Metadata: metadata,
			Score:    float64(doc.Score),
		}
		if id, ok := metadata["id"]; ok {
			chunks[i].ID = fmt.Sprint(id)
		}
	}
	return chunks
}

// ToDocuments converts chunks back into langchaingo documents.
func ToDocuments(chunks []Chunk) []schema.Document {
	docs := make([]schema.Document, len(chunks))
	for i, c := range chunks {
		metadata := make(map[string]any, len(c.Metadata)+1)
		maps.Copy(metadata, c.Metadata)
		if c.ID != "" {
			metadata["id"] = c.ID
		}

		docs[i] = schema.Document{
			PageContent: c.Content,
			Metadata:    metadata,
			Score:       float32(c.Score),
		}
	}
	return docs
}
