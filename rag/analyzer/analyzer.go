// Package analyzer turns a free-text question into a rag.StructuredQuery by
// asking the language model for a JSON object with a search query and the
// section of the source document to search.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/llms"
)

// SystemPrompt describes the structured output expected from the model.
const SystemPrompt = `You turn a user question into a search request over a document split into three sections.
Respond with a single JSON object and nothing else, with exactly these fields:
  "query":   the search query to run, a short rephrasing of the question.
  "section": the section to query, one of "beginning", "middle" or "end".`

// Analyzer produces structured queries with a language model.
type Analyzer struct {
	model  llms.Model
	logger log.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger. Defaults to the package-level logger.
func WithLogger(logger log.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// New creates an Analyzer over model.
func New(model llms.Model, opts ...Option) *Analyzer {
	a := &Analyzer{model: model}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze asks the model for the search request behind question.
// Unparsable output wraps rag.ErrMalformedQuery; a section outside the enum
// wraps rag.ErrInvalidSection. An empty query falls back to the question.
func (a *Analyzer) Analyze(ctx context.Context, question string) (*rag.StructuredQuery, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}

	resp, err := a.model.GenerateContent(ctx, messages, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("analyze query: %w: empty response", rag.ErrMalformedQuery)
	}

	q, err := Parse(resp.Choices[0].Content)
	if err != nil {
		return nil, fmt.Errorf("analyze query: %w", err)
	}
	if q.Query == "" {
		q.Query = question
	}

	log.OrDefault(a.logger).Debug("analyze query: %q -> query=%q section=%s", question, q.Query, q.Section)
	return q, nil
}

// rawQuery accepts the section as any JSON value so a wrong type is reported
// as an invalid section rather than a decode failure.
type rawQuery struct {
	Query   string `json:"query"`
	Section any    `json:"section"`
}

// Parse decodes the first JSON object in text into a StructuredQuery.
// Text around the object, such as a markdown fence, is ignored.
func Parse(text string) (*rag.StructuredQuery, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON object in %q", rag.ErrMalformedQuery, text)
	}

	var raw rawQuery
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrMalformedQuery, err)
	}

	label, _ := raw.Section.(string)
	if raw.Section != nil && label == "" {
		label = fmt.Sprint(raw.Section)
	}
	section, err := rag.ParseSection(label)
	if err != nil {
		return nil, err
	}

	return &rag.StructuredQuery{
		Query:   strings.TrimSpace(raw.Query),
		Section: section,
	}, nil
}
