package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/smallnest/ragchat/graph"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/analyzer"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/rag/ragtest"
	"github.com/smallnest/ragchat/rag/retriever"
	"github.com/smallnest/ragchat/rag/store"
	"github.com/smallnest/ragchat/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answer = "Task decomposition breaks a goal into smaller steps."

var corpus = []rag.Chunk{
	{ID: "b1", Content: "task decomposition with chain of thought", Metadata: map[string]any{rag.MetadataSection: "beginning", rag.MetadataSource: "post"}},
	{ID: "m1", Content: "task decomposition with memory", Metadata: map[string]any{rag.MetadataSection: "middle", rag.MetadataSource: "post"}},
	{ID: "m2", Content: "vector search indexes", Metadata: map[string]any{rag.MetadataSection: "middle", rag.MetadataSource: "post"}},
	{ID: "e1", Content: "task decomposition is unreliable", Metadata: map[string]any{rag.MetadataSection: "end", rag.MetadataSource: "post"}},
}

type fixture struct {
	analyzerModel  *ragtest.Model
	generatorModel *ragtest.Model
	analyzer       *analyzer.Analyzer
	retriever      *retriever.Retriever
	generator      *generator.Generator
}

func newFixture(t *testing.T, analysis string) *fixture {
	t.Helper()
	embedder := ragtest.NewEmbedder(1024)
	s := store.NewMemoryStore()

	texts := make([]string, len(corpus))
	for i, c := range corpus {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), corpus, vectors))

	f := &fixture{
		analyzerModel:  ragtest.NewModel(analysis),
		generatorModel: ragtest.NewModel(answer),
	}
	f.analyzer = analyzer.New(f.analyzerModel)
	f.retriever = retriever.New(embedder, s)
	f.generator = generator.New(f.generatorModel)
	return f
}

func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithLogger(&log.NoOpLogger{})}, opts...)
	e, err := New(f.analyzer, f.retriever, f.generator, opts...)
	require.NoError(t, err)
	return e
}

func TestAnswer(t *testing.T) {
	f := newFixture(t, `{"query": "task decomposition", "section": "middle"}`)
	e := f.engine(t)

	state, err := e.Answer(context.Background(), "What is task decomposition?")
	require.NoError(t, err)

	assert.Equal(t, "What is task decomposition?", state.Question)
	require.NotNil(t, state.Query)
	assert.Equal(t, rag.StructuredQuery{Query: "task decomposition", Section: rag.SectionMiddle}, *state.Query)
	require.NotEmpty(t, state.Context)
	for _, c := range state.Context {
		assert.Equal(t, rag.SectionMiddle, c.Section())
	}
	assert.Equal(t, "m1", state.Context[0].ID)
	assert.Equal(t, answer, state.Answer)

	calls := f.generatorModel.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Text(), "task decomposition with memory")
	assert.NotContains(t, calls[0].Text(), "chain of thought")
}

func TestAnswerEqualsCollectedStream(t *testing.T) {
	f := newFixture(t, `{"query": "task decomposition", "section": "end"}`)
	e := f.engine(t)
	ctx := context.Background()

	state, err := e.Answer(ctx, "Why is task decomposition hard?")
	require.NoError(t, err)

	streamState, stream, err := e.AnswerStream(ctx, "Why is task decomposition hard?")
	require.NoError(t, err)
	collected, err := stream.Collect()
	require.NoError(t, err)

	assert.Equal(t, state.Answer, collected)
	assert.Equal(t, generator.OutcomeStreamed, stream.Outcome())
	assert.Equal(t, state.Query, streamState.Query)
	assert.Equal(t, state.Context, streamState.Context)
	assert.Empty(t, streamState.Answer)
}

func TestAnswerStreamFallback(t *testing.T) {
	f := newFixture(t, `{"query": "task decomposition", "section": "beginning"}`)
	f.generatorModel.Fragments = []string{"never", "sent"}
	f.generatorModel.StreamErr = ragtest.ErrStreamFailed
	e := f.engine(t)

	_, stream, err := e.AnswerStream(context.Background(), "What is task decomposition?")
	require.NoError(t, err)

	var fragments []string
	for fragment := range stream.Fragments() {
		fragments = append(fragments, fragment)
	}
	assert.Equal(t, []string{answer}, fragments)
	assert.Equal(t, generator.OutcomeFallback, stream.Outcome())
	assert.NoError(t, stream.Err())
}

func TestAnswerEmptyQuestion(t *testing.T) {
	f := newFixture(t, `{}`)
	e := f.engine(t)

	_, err := e.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, _, err = e.AnswerStream(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	assert.Empty(t, f.analyzerModel.Calls())
}

func TestInvalidSectionPolicy(t *testing.T) {
	t.Run("fail", func(t *testing.T) {
		f := newFixture(t, `{"query": "task decomposition", "section": "appendix"}`)
		e := f.engine(t)

		_, err := e.Answer(context.Background(), "What is task decomposition?")
		require.Error(t, err)
		assert.True(t, errors.Is(err, rag.ErrInvalidSection))
		assert.Contains(t, err.Error(), NodeAnalyzeQuery)
		assert.Empty(t, f.generatorModel.Calls())
	})

	t.Run("unfiltered", func(t *testing.T) {
		f := newFixture(t, `not json at all`)
		e := f.engine(t, WithInvalidSectionPolicy(PolicyUnfiltered))

		state, err := e.Answer(context.Background(), "task decomposition")
		require.NoError(t, err)
		assert.Equal(t, &rag.StructuredQuery{Query: "task decomposition"}, state.Query)

		sections := map[rag.Section]bool{}
		for _, c := range state.Context {
			sections[c.Section()] = true
		}
		assert.Len(t, sections, 3)
		assert.Equal(t, answer, state.Answer)
	})
}

func TestUpstreamErrorIsNotMaskedByPolicy(t *testing.T) {
	f := newFixture(t, `{}`)
	f.analyzerModel.Err = errors.New("503 service unavailable")
	e := f.engine(t, WithInvalidSectionPolicy(PolicyUnfiltered))

	_, err := e.Answer(context.Background(), "What is task decomposition?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWithoutQueryAnalysis(t *testing.T) {
	f := newFixture(t, `{"query": "ignored", "section": "end"}`)
	e, err := New(nil, f.retriever, f.generator, WithoutQueryAnalysis(), WithLogger(&log.NoOpLogger{}))
	require.NoError(t, err)
	assert.False(t, e.QueryAnalysis())

	state, err := e.Answer(context.Background(), "task decomposition")
	require.NoError(t, err)
	assert.Empty(t, f.analyzerModel.Calls())
	assert.Equal(t, rag.Section(""), state.Query.Section)
	assert.Len(t, state.Context, retriever.DefaultK)
	assert.Equal(t, answer, state.Answer)

	nodes := e.Graph().Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, NodeRetrieve, nodes[0].Name)
	assert.Equal(t, NodeGenerate, nodes[1].Name)
}

func TestNewValidation(t *testing.T) {
	f := newFixture(t, `{}`)

	_, err := New(nil, f.retriever, f.generator)
	assert.Error(t, err)
	_, err = New(f.analyzer, nil, f.generator)
	assert.Error(t, err)
	_, err = New(f.analyzer, f.retriever, nil)
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, `{"query": "task decomposition", "section": "middle"}`)
	h := memory.NewMemoryHistoryStore()
	e := f.engine(t, WithHistory(h))
	ctx := context.Background()

	_, err := e.Answer(ctx, "What is task decomposition?")
	require.NoError(t, err)

	state, stream, err := e.AnswerStream(ctx, "And memory?")
	require.NoError(t, err)
	state.Answer, err = stream.Collect()
	require.NoError(t, err)
	require.NoError(t, e.Record(ctx, *state, stream.Outcome()))

	list, err := h.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "And memory?", list[0].Question)
	assert.Equal(t, string(generator.OutcomeStreamed), list[0].Outcome)
	assert.Equal(t, answer, list[0].Answer)
	assert.Equal(t, []string{"post"}, list[1].Sources)
	assert.Same(t, h, e.History())
}

func TestTraceHooksAndLogging(t *testing.T) {
	f := newFixture(t, `{"query": "task decomposition", "section": "middle"}`)
	var buf bytes.Buffer
	var ended []string
	recorder := graph.TraceHookFunc(func(_ context.Context, span *graph.TraceSpan) {
		if span.Event == graph.TraceEventNodeEnd {
			ended = append(ended, span.NodeName)
		}
	})
	e := f.engine(t, WithLogger(log.NewCustomLogger(&buf, log.LogLevelDebug)), WithTraceHooks(recorder))

	_, err := e.Answer(context.Background(), "What is task decomposition?")
	require.NoError(t, err)

	assert.Equal(t, []string{NodeAnalyzeQuery, NodeRetrieve, NodeGenerate}, ended)
	assert.Contains(t, buf.String(), "stage retrieve finished")
	assert.Contains(t, buf.String(), "analyze_query -> retrieve")
}

func TestDiagrams(t *testing.T) {
	f := newFixture(t, `{}`)
	e := f.engine(t)

	mermaid := e.Mermaid()
	assert.Contains(t, mermaid, "START --> analyze_query")
	assert.Contains(t, mermaid, "analyze_query --> retrieve")
	assert.Contains(t, mermaid, "retrieve --> generate")
	assert.Contains(t, mermaid, "generate --> END")

	ascii := e.ASCII()
	assert.Contains(t, ascii, "analyze_query")
	assert.Contains(t, ascii, "generate - Answer the question from the retrieved context")
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    InvalidSectionPolicy
		wantErr bool
	}{
		{"", PolicyFail, false},
		{"fail", PolicyFail, false},
		{" Unfiltered ", PolicyUnfiltered, false},
		{"retry", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
