package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// TextLoader reads a plain text file as a single document.
type TextLoader struct {
	path string
}

// NewTextLoader creates a loader for the file at path.
func NewTextLoader(path string) *TextLoader {
	return &TextLoader{path: path}
}

// Load reads the whole file.
func (l *TextLoader) Load(ctx context.Context) ([]schema.Document, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}
	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]any)
		}
		docs[i].Metadata[rag.MetadataSource] = l.path
	}
	return docs, nil
}
