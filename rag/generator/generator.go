// Package generator produces answers from a question and retrieved chunks,
// either as one blocking call or as a stream of fragments that falls back to
// a single blocking call when streaming fails.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// PalPersona is the system message sent with every request.
const PalPersona = "You are Pal, a helpful assistant from University Administration that help students with their questions."

// RAGTemplate is the question-answering prompt. It takes "question" and "context".
const RAGTemplate = `You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question. If you don't know the answer, just say that you don't know. Use three sentences maximum and keep the answer concise.
Question: {{.question}}
Context: {{.context}}
Answer:`

// ContextSeparator joins chunk contents in the prompt.
const ContextSeparator = "\n\n"

// Generator asks a language model to answer questions.
type Generator struct {
	model    llms.Model
	persona  string
	template prompts.PromptTemplate
	callOpts []llms.CallOption
	logger   log.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithPersona replaces the system message. An empty persona sends none.
func WithPersona(persona string) Option {
	return func(g *Generator) {
		g.persona = persona
	}
}

// WithTemplate replaces the RAG prompt. The template must use the
// "question" and "context" variables.
func WithTemplate(tmpl string) Option {
	return func(g *Generator) {
		g.template = prompts.NewPromptTemplate(tmpl, []string{"question", "context"})
	}
}

// WithCallOptions adds options to every model call.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(g *Generator) {
		g.callOpts = append(g.callOpts, opts...)
	}
}

// WithLogger sets the logger. Defaults to the package-level logger.
func WithLogger(logger log.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a Generator over model with the Pal persona and RAGTemplate.
func New(model llms.Model, opts ...Option) *Generator {
	g := &Generator{
		model:    model,
		persona:  PalPersona,
		template: prompts.NewPromptTemplate(RAGTemplate, []string{"question", "context"}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Prompt renders the RAG prompt for question over chunks.
func (g *Generator) Prompt(question string, chunks []rag.Chunk) (string, error) {
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	prompt, err := g.template.Format(map[string]any{
		"question": question,
		"context":  strings.Join(contents, ContextSeparator),
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	return prompt, nil
}

func (g *Generator) messages(human string) []llms.MessageContent {
	var messages []llms.MessageContent
	if g.persona != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, g.persona))
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, human))
}

// Generate answers question from chunks with one blocking call.
func (g *Generator) Generate(ctx context.Context, question string, chunks []rag.Chunk) (string, error) {
	prompt, err := g.Prompt(question, chunks)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, g.messages(prompt))
}

// Stream answers question from chunks fragment by fragment.
func (g *Generator) Stream(ctx context.Context, question string, chunks []rag.Chunk) *Stream {
	prompt, err := g.Prompt(question, chunks)
	if err != nil {
		return failedStream(err)
	}
	return g.stream(ctx, g.messages(prompt))
}

// Chat answers message in the Pal persona without retrieved context.
func (g *Generator) Chat(ctx context.Context, message string) (string, error) {
	return g.complete(ctx, g.messages(message))
}

// ChatStream is the streaming form of Chat.
func (g *Generator) ChatStream(ctx context.Context, message string) *Stream {
	return g.stream(ctx, g.messages(message))
}

func (g *Generator) complete(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := g.model.GenerateContent(ctx, messages, g.callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate: empty response")
	}
	return resp.Choices[0].Content, nil
}

func (g *Generator) stream(ctx context.Context, messages []llms.MessageContent) *Stream {
	s := newStream()

	go func() {
		defer close(s.done)
		defer close(s.fragments)

		sent := false
		send := func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case s.fragments <- string(chunk):
				sent = true
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		opts := append(append([]llms.CallOption{}, g.callOpts...), llms.WithStreamingFunc(send))
		resp, err := g.model.GenerateContent(ctx, messages, opts...)
		if err == nil {
			s.outcome = OutcomeStreamed
			// Models without streaming support return the whole answer at once.
			if !sent && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
				select {
				case s.fragments <- resp.Choices[0].Content:
				case <-ctx.Done():
					s.err = ctx.Err()
				}
			}
			return
		}
		if ctx.Err() != nil {
			s.outcome = OutcomeStreamed
			s.err = ctx.Err()
			return
		}

		log.OrDefault(g.logger).Warn("streaming failed, falling back to a single response: %v", err)
		s.outcome = OutcomeFallback

		content, err := g.complete(ctx, messages)
		if err != nil {
			s.err = fmt.Errorf("fallback: %w", err)
			return
		}
		select {
		case s.fragments <- content:
		case <-ctx.Done():
			s.err = ctx.Err()
		}
	}()

	return s
}
