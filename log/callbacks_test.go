package log

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tmc/langchaingo/llms"
)

func TestCallbackHandler(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCallbackHandler(NewCustomLogger(&buf, LogLevelDebug))
	ctx := context.Background()

	handler.HandleLLMGenerateContentStart(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "system"),
		llms.TextParts(llms.ChatMessageTypeHuman, "question"),
	})
	handler.HandleLLMGenerateContentEnd(ctx, &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "answer", StopReason: "stop"}},
	})
	handler.HandleLLMGenerateContentEnd(ctx, &llms.ContentResponse{})
	handler.HandleLLMError(ctx, errors.New("upstream down"))
	handler.HandleRetrieverStart(ctx, "task decomposition")

	out := buf.String()
	assert.Contains(t, out, "llm request: 2 messages")
	assert.Contains(t, out, `llm response: 6 chars, stop="stop"`)
	assert.Contains(t, out, "llm response: no choices")
	assert.Contains(t, out, "llm error: upstream down")
	assert.Contains(t, out, `retrieve: "task decomposition"`)
}
