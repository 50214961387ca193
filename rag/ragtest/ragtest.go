// Package ragtest provides deterministic stand-ins for the language model and
// embedder, for tests and offline runs.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// ErrStreamFailed is returned by Model when a streaming call is scripted to fail.
var ErrStreamFailed = errors.New("stream failed")

// Call records one request made to a Model.
type Call struct {
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

// Text returns the concatenated text of every message in the call.
func (c Call) Text() string {
	var b strings.Builder
	for _, m := range c.Messages {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				b.WriteString(t.Text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// Model is a scripted llms.Model. Blocking calls return Responses in order,
// repeating the last one. Streaming calls emit Fragments one by one; if
// StreamErr is set they emit StreamErrAfter fragments first and then fail.
type Model struct {
	Responses      []string
	Fragments      []string
	StreamErr      error
	StreamErrAfter int
	Err            error

	mu    sync.Mutex
	calls []Call
	next  int
}

var _ llms.Model = (*Model)(nil)

// NewModel returns a model that answers every call with responses in turn.
func NewModel(responses ...string) *Model {
	return &Model{Responses: responses}
}

// Calls returns a copy of the recorded requests.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{Messages: messages, Options: opts})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.StreamingFunc != nil && (len(m.Fragments) > 0 || m.StreamErr != nil) {
		return m.stream(ctx, opts.StreamingFunc)
	}
	if m.Err != nil {
		return nil, m.Err
	}

	content := m.nextResponse()
	if opts.StreamingFunc != nil {
		if err := opts.StreamingFunc(ctx, []byte(content)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}}}, nil
}

func (m *Model) nextResponse() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Responses) == 0 {
		return ""
	}
	i := min(m.next, len(m.Responses)-1)
	m.next++
	return m.Responses[i]
}

func (m *Model) stream(ctx context.Context, fn func(context.Context, []byte) error) (*llms.ContentResponse, error) {
	var b strings.Builder
	for i, f := range m.Fragments {
		if m.StreamErr != nil && i >= m.StreamErrAfter {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := fn(ctx, []byte(f)); err != nil {
			return nil, err
		}
		b.WriteString(f)
	}
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: b.String(), StopReason: "stop"}}}, nil
}

// Embedder hashes words into a fixed number of buckets and normalizes the
// result, so texts sharing words have a positive cosine similarity.
type Embedder struct {
	Dimensions int
	Err        error
}

// NewEmbedder returns an Embedder producing vectors of the given size.
func NewEmbedder(dimensions int) *Embedder {
	return &Embedder{Dimensions: dimensions}
}

// EmbedDocuments embeds each text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// EmbedQuery embeds one text.
func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}

	dims := e.Dimensions
	if dims <= 0 {
		dims = 64
	}
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dims)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v, nil
}
