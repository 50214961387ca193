// Package loader reads source documents for ingestion. Sources are web pages,
// markdown files and plain text files; every loaded document carries a
// "source" metadata entry naming where it came from.
package loader

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/smallnest/ragchat/rag"
)

// New picks a loader for source: http(s) URLs are fetched as web pages,
// ".md" and ".markdown" files are rendered as markdown, anything else is read
// as plain text.
func New(source string, client *http.Client) rag.Loader {
	lower := strings.ToLower(source)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return NewWebLoader(source, WithHTTPClient(client))
	case filepath.Ext(lower) == ".md", filepath.Ext(lower) == ".markdown":
		return NewMarkdownLoader(source)
	default:
		return NewTextLoader(source)
	}
}
