package loader

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/schema"
)

// DefaultSelector keeps the title, header and body of a blog post.
const DefaultSelector = ".post-content, .post-title, .post-header"

// WebLoader fetches a page over HTTP and keeps the text of the elements
// matching a CSS selector.
type WebLoader struct {
	url       string
	selector  string
	client    *http.Client
	userAgent string
	metadata  map[string]any
}

// WebLoaderOption configures a WebLoader.
type WebLoaderOption func(*WebLoader)

// WithSelector sets the CSS selector of the elements to keep. An empty
// selector keeps the whole body.
func WithSelector(selector string) WebLoaderOption {
	return func(l *WebLoader) {
		l.selector = selector
	}
}

// WithHTTPClient sets the client used for fetching. Nil keeps the default.
func WithHTTPClient(client *http.Client) WebLoaderOption {
	return func(l *WebLoader) {
		if client != nil {
			l.client = client
		}
	}
}

// WithUserAgent sets the User-Agent header sent with the request.
func WithUserAgent(ua string) WebLoaderOption {
	return func(l *WebLoader) {
		l.userAgent = ua
	}
}

// WithWebMetadata adds metadata to the loaded document.
func WithWebMetadata(metadata map[string]any) WebLoaderOption {
	return func(l *WebLoader) {
		for k, v := range metadata {
			l.metadata[k] = v
		}
	}
}

// NewWebLoader creates a loader for url using DefaultSelector.
func NewWebLoader(url string, opts ...WebLoaderOption) *WebLoader {
	l := &WebLoader{
		url:       url,
		selector:  DefaultSelector,
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "ragchat/1.0",
		metadata:  map[string]any{rag.MetadataSource: url},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the page and returns a single document with its text.
func (l *WebLoader) Load(ctx context.Context) ([]schema.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", l.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", l.url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", l.url, err)
	}

	text := extractText(doc, l.selector)
	if text == "" {
		return nil, fmt.Errorf("no content matched %q at %s", l.selector, l.url)
	}

	metadata := make(map[string]any, len(l.metadata))
	for k, v := range l.metadata {
		metadata[k] = v
	}
	return []schema.Document{{PageContent: text, Metadata: metadata}}, nil
}

// extractText returns the sanitized text of the selected elements in document
// order, separated by blank lines.
func extractText(doc *goquery.Document, selector string) string {
	doc.Find("script, style, noscript").Remove()

	sel := doc.Find("body")
	if selector != "" {
		sel = doc.Find(selector)
	}

	policy := bluemonday.StrictPolicy()
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(html.UnescapeString(policy.Sanitize(s.Text())))
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}
