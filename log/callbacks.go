package log

import (
	"context"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// CallbackHandler reports langchaingo model and retriever events to a Logger.
type CallbackHandler struct {
	callbacks.SimpleHandler
	logger Logger
}

var _ callbacks.Handler = (*CallbackHandler)(nil)

// NewCallbackHandler creates a handler that logs through logger, or the package-level logger if nil.
func NewCallbackHandler(logger Logger) *CallbackHandler {
	return &CallbackHandler{logger: logger}
}

func (h *CallbackHandler) log() Logger {
	return OrDefault(h.logger)
}

// HandleLLMGenerateContentStart logs the number of messages sent to the model.
func (h *CallbackHandler) HandleLLMGenerateContentStart(_ context.Context, ms []llms.MessageContent) {
	h.log().Debug("llm request: %d messages", len(ms))
}

// HandleLLMGenerateContentEnd logs the size of the model response.
func (h *CallbackHandler) HandleLLMGenerateContentEnd(_ context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		h.log().Warn("llm response: no choices")
		return
	}
	choice := res.Choices[0]
	h.log().Debug("llm response: %d chars, stop=%q", len(choice.Content), choice.StopReason)
}

// HandleLLMError logs model failures.
func (h *CallbackHandler) HandleLLMError(_ context.Context, err error) {
	h.log().Error("llm error: %v", err)
}

// HandleRetrieverStart logs the query sent to the vector store.
func (h *CallbackHandler) HandleRetrieverStart(_ context.Context, query string) {
	h.log().Debug("retrieve: %q", query)
}

// HandleRetrieverEnd logs how many chunks came back.
func (h *CallbackHandler) HandleRetrieverEnd(_ context.Context, query string, documents []schema.Document) {
	h.log().Debug("retrieve: %q returned %d chunks", query, len(documents))
}
