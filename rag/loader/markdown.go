package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/schema"
)

// MarkdownLoader reads a markdown file and returns its rendered text without markup.
type MarkdownLoader struct {
	path string
}

// NewMarkdownLoader creates a loader for the markdown file at path.
func NewMarkdownLoader(path string) *MarkdownLoader {
	return &MarkdownLoader{path: path}
}

// Load reads and renders the file.
func (l *MarkdownLoader) Load(_ context.Context) ([]schema.Document, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.path, err)
	}

	text, err := MarkdownToText(data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", l.path, err)
	}

	return []schema.Document{{
		PageContent: text,
		Metadata:    map[string]any{rag.MetadataSource: l.path},
	}}, nil
}

// MarkdownToText renders md to HTML and returns the text of each top-level block.
func MarkdownToText(md []byte) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.ToHTML(md, p, renderer)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rendered))
	if err != nil {
		return "", err
	}
	return extractText(doc, "body > *"), nil
}
