package huggingface

import (
	"net/http"
	"os"

	"github.com/tmc/langchaingo/callbacks"
)

const (
	// DefaultBaseURL is the OpenAI-compatible Hugging Face inference router.
	DefaultBaseURL = "https://router.huggingface.co/v1"

	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "meta-llama/Llama-3.1-8B-Instruct"

	// DefaultEmbeddingModel produces 384-dimensional sentence embeddings.
	DefaultEmbeddingModel = "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2"

	// DefaultMaxTokens caps generated tokens when the call does not set a limit.
	DefaultMaxTokens = 512
)

type options struct {
	token            string
	model            string
	embeddingModel   string
	baseURL          string
	embeddingBaseURL string
	maxTokens        int
	temperature      float64
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithToken sets the Hugging Face access token.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel sets the chat model, e.g. "mistralai/Mistral-7B-Instruct-v0.3".
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithEmbeddingModel sets the model used by CreateEmbedding.
func WithEmbeddingModel(model string) Option {
	return func(opts *options) {
		opts.embeddingModel = model
	}
}

// WithBaseURL sets the base URL of the chat completions API.
// Default is DefaultBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithEmbeddingBaseURL sets the base URL of the embeddings API.
// Defaults to the chat base URL.
func WithEmbeddingBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.embeddingBaseURL = baseURL
	}
}

// WithMaxTokens sets the default generation limit.
func WithMaxTokens(n int) Option {
	return func(opts *options) {
		opts.maxTokens = n
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(opts *options) {
		opts.temperature = t
	}
}

// WithHTTPClient sets the HTTP client for the LLM.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithCallbacks sets the callbacks handler for the LLM.
func WithCallbacks(handler callbacks.Handler) Option {
	return func(opts *options) {
		opts.callbacksHandler = handler
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
