package huggingface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrEmptyResponse = errors.New("no response")
	ErrMissingToken  = errors.New("missing Hugging Face token")
)

// LLM is a chat and embedding client for Hugging Face inference providers
// that speak the OpenAI wire format.
type LLM struct {
	chat             *openai.Client
	embed            *openai.Client
	model            string
	embeddingModel   string
	maxTokens        int
	temperature      float64
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a client authenticated with WithToken or the HUGGINGFACE_TOKEN
// environment variable.
//
//	llm, err := huggingface.New(
//		huggingface.WithToken(token),
//		huggingface.WithModel("mistralai/Mistral-7B-Instruct-v0.3"),
//	)
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:          getEnvOrDefault("HUGGINGFACE_TOKEN", ""),
		model:          DefaultModel,
		embeddingModel: DefaultEmbeddingModel,
		baseURL:        DefaultBaseURL,
		maxTokens:      DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.token == "" {
		return nil, fmt.Errorf(`%w
You can pass it with huggingface.New(huggingface.WithToken("{token}"))
or
export HUGGINGFACE_TOKEN={token}`, ErrMissingToken)
	}
	if o.embeddingBaseURL == "" {
		o.embeddingBaseURL = o.baseURL
	}

	return &LLM{
		chat:             openai.NewClientWithConfig(clientConfig(o.token, o.baseURL, o)),
		embed:            openai.NewClientWithConfig(clientConfig(o.token, o.embeddingBaseURL, o)),
		model:            o.model,
		embeddingModel:   o.embeddingModel,
		maxTokens:        o.maxTokens,
		temperature:      o.temperature,
		CallbacksHandler: o.callbacksHandler,
	}, nil
}

func clientConfig(token, baseURL string, o *options) openai.ClientConfig {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	return cfg
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface. A StreamingFunc in the call
// options switches to a streamed request; the returned response then holds the
// concatenated stream.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{Temperature: unsetTemperature}
	for _, opt := range options {
		opt(opts)
	}

	req := o.buildRequest(messages, opts)

	var (
		resp *llms.ContentResponse
		err  error
	)
	if opts.StreamingFunc != nil {
		resp, err = o.stream(ctx, req, opts.StreamingFunc)
	} else {
		resp, err = o.complete(ctx, req)
	}
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

func (o *LLM) buildRequest(messages []llms.MessageContent, opts *llms.CallOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		var content strings.Builder
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				content.WriteString(text.Text)
			}
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    roleFor(msg.Role),
			Content: content.String(),
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   o.maxTokens,
		Temperature: float32(o.temperature),
		Stop:        opts.StopWords,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature >= 0 {
		req.Temperature = wireTemperature(opts.Temperature)
	}
	if opts.TopP > 0 {
		req.TopP = float32(opts.TopP)
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// unsetTemperature marks CallOptions.Temperature as not given by the caller,
// so an explicit llms.WithTemperature(0) can be told apart from no option.
const unsetTemperature = -1

// wireTemperature converts an explicit temperature for the request. go-openai
// omits a zero temperature, so zero is sent as the smallest positive value.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func roleFor(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func (o *LLM) complete(ctx context.Context, req openai.ChatCompletionRequest) (*llms.ContentResponse, error) {
	result, err := o.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := result.Choices[0]
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    choice.Message.Content,
			StopReason: string(choice.FinishReason),
			GenerationInfo: map[string]any{
				"prompt_tokens":     result.Usage.PromptTokens,
				"completion_tokens": result.Usage.CompletionTokens,
				"total_tokens":      result.Usage.TotalTokens,
			},
		}},
	}, nil
}

func (o *LLM) stream(ctx context.Context, req openai.ChatCompletionRequest, fn func(context.Context, []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true
	stream, err := o.chat.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	defer stream.Close()

	var (
		content    strings.Builder
		stopReason string
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			stopReason = string(choice.FinishReason)
		}
		delta := choice.Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if err := fn(ctx, []byte(delta)); err != nil {
			return nil, err
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        content.String(),
			StopReason:     stopReason,
			GenerationInfo: map[string]any{},
		}},
	}, nil
}

// CreateEmbedding embeds texts with the embedding model. It satisfies
// langchaingo's embeddings.EmbedderClient.
func (o *LLM) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.embed.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrEmptyResponse, len(resp.Data), len(texts))
	}

	emb := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(emb) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		emb[d.Index] = d.Embedding
	}
	return emb, nil
}
