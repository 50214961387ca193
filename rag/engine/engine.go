// Package engine sequences the analyze_query, retrieve and generate stages as a graph.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/ragchat/graph"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/store"
)

// Node names of the pipeline graph.
const (
	NodeAnalyzeQuery = "analyze_query"
	NodeRetrieve     = "retrieve"
	NodeGenerate     = "generate"
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question is empty")

// QueryAnalyzer turns a question into a structured query.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, question string) (*rag.StructuredQuery, error)
}

// Retriever returns the chunks relevant to a structured query.
type Retriever interface {
	Retrieve(ctx context.Context, q *rag.StructuredQuery) ([]rag.Chunk, error)
}

// Generator answers a question from context chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []rag.Chunk) (string, error)
	Stream(ctx context.Context, question string, chunks []rag.Chunk) *generator.Stream
}

// Engine runs the question answering pipeline.
//
// The full graph is analyze_query -> retrieve -> generate. The prefix graph
// stops after retrieve and is used by AnswerStream, which hands the retrieved
// context to the generator's stream.
type Engine struct {
	analyzer  QueryAnalyzer
	retriever Retriever
	generator Generator

	analyze bool
	policy  InvalidSectionPolicy
	history store.HistoryStore
	logger  log.Logger
	hooks   []graph.TraceHook

	full   *graph.StateRunnable[rag.State]
	prefix *graph.StateRunnable[rag.State]
}

// New builds an engine. analyzer may be nil only together with WithoutQueryAnalysis.
func New(analyzer QueryAnalyzer, retriever Retriever, gen Generator, opts ...Option) (*Engine, error) {
	e := &Engine{
		analyzer:  analyzer,
		retriever: retriever,
		generator: gen,
		analyze:   true,
		policy:    PolicyFail,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if e.generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if e.analyze && e.analyzer == nil {
		return nil, fmt.Errorf("analyzer is required unless query analysis is disabled")
	}

	tracer := graph.NewTracer(append([]graph.TraceHook{e.traceHook()}, e.hooks...)...)

	full, err := e.build(true).Compile()
	if err != nil {
		return nil, fmt.Errorf("compile pipeline: %w", err)
	}
	prefix, err := e.build(false).Compile()
	if err != nil {
		return nil, fmt.Errorf("compile retrieval pipeline: %w", err)
	}

	e.full = full.WithTracer(tracer)
	e.prefix = prefix.WithTracer(tracer)
	return e, nil
}

func (e *Engine) log() log.Logger {
	return log.OrDefault(e.logger)
}

// build assembles the pipeline graph, ending after retrieve when withGenerate is false.
func (e *Engine) build(withGenerate bool) *graph.StateGraph[rag.State] {
	g := graph.NewStateGraph[rag.State]()

	var names []string
	if e.analyze {
		g.AddNode(NodeAnalyzeQuery, "Turn the question into a structured query", e.analyzeNode)
		names = append(names, NodeAnalyzeQuery)
	}
	g.AddNode(NodeRetrieve, "Search the vector store for relevant chunks", e.retrieveNode)
	names = append(names, NodeRetrieve)
	if withGenerate {
		g.AddNode(NodeGenerate, "Answer the question from the retrieved context", e.generateNode)
		names = append(names, NodeGenerate)
	}

	g.SetEntryPoint(names[0])
	g.AddSequence(names...)
	g.AddEdge(names[len(names)-1], graph.END)
	return g
}

func (e *Engine) analyzeNode(ctx context.Context, state rag.State) (rag.State, error) {
	q, err := e.analyzer.Analyze(ctx, state.Question)
	if err != nil {
		malformed := errors.Is(err, rag.ErrInvalidSection) || errors.Is(err, rag.ErrMalformedQuery)
		if !malformed || e.policy != PolicyUnfiltered {
			return state, err
		}
		e.log().Warn("analyze_query: %v; searching without a section filter", err)
		q = &rag.StructuredQuery{Query: state.Question}
	}
	state.Query = q
	return state, nil
}

func (e *Engine) retrieveNode(ctx context.Context, state rag.State) (rag.State, error) {
	if state.Query == nil {
		state.Query = &rag.StructuredQuery{Query: state.Question}
	}
	chunks, err := e.retriever.Retrieve(ctx, state.Query)
	if err != nil {
		return state, err
	}
	state.Context = chunks
	return state, nil
}

func (e *Engine) generateNode(ctx context.Context, state rag.State) (rag.State, error) {
	answer, err := e.generator.Generate(ctx, state.Question, state.Context)
	if err != nil {
		return state, err
	}
	state.Answer = answer
	return state, nil
}

// Answer runs the full pipeline and returns the final state.
func (e *Engine) Answer(ctx context.Context, question string) (*rag.State, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	state, err := e.full.Invoke(ctx, rag.State{Question: question})
	if err != nil {
		return nil, err
	}

	if err := e.Record(ctx, state, ""); err != nil {
		e.log().Warn("history: %v", err)
	}
	return &state, nil
}

// AnswerStream runs analyze_query and retrieve, then streams the answer.
// The returned state has Query and Context set; Answer is left empty for the
// caller to fill from the stream.
func (e *Engine) AnswerStream(ctx context.Context, question string) (*rag.State, *generator.Stream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, ErrEmptyQuestion
	}

	state, err := e.prefix.Invoke(ctx, rag.State{Question: question})
	if err != nil {
		return nil, nil, err
	}

	e.log().Debug("stage %s started (streaming)", NodeGenerate)
	return &state, e.generator.Stream(ctx, state.Question, state.Context), nil
}

// Record saves a finished exchange to the history store, if one is configured.
func (e *Engine) Record(ctx context.Context, state rag.State, outcome generator.Outcome) error {
	if e.history == nil {
		return nil
	}
	if err := e.history.Save(ctx, store.NewExchange(state, string(outcome))); err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

// History returns the configured history store, or nil.
func (e *Engine) History() store.HistoryStore {
	return e.history
}

// QueryAnalysis reports whether the analyzer variant is in use.
func (e *Engine) QueryAnalysis() bool {
	return e.analyze
}

// Graph returns the full pipeline graph.
func (e *Engine) Graph() *graph.StateGraph[rag.State] {
	return e.full.Graph()
}

// Mermaid renders the pipeline as a Mermaid flowchart.
func (e *Engine) Mermaid() string {
	return graph.NewExporter(e.Graph()).DrawMermaid()
}

// ASCII renders the pipeline as an ASCII tree.
func (e *Engine) ASCII() string {
	return graph.NewExporter(e.Graph()).DrawASCII()
}

// traceHook logs stage transitions.
func (e *Engine) traceHook() graph.TraceHook {
	return graph.TraceHookFunc(func(_ context.Context, span *graph.TraceSpan) {
		switch span.Event {
		case graph.TraceEventNodeStart:
			e.log().Debug("stage %s started", span.NodeName)
		case graph.TraceEventNodeEnd:
			e.log().Info("stage %s finished in %s", span.NodeName, span.Duration)
		case graph.TraceEventNodeError:
			e.log().Error("stage %s failed after %s: %v", span.NodeName, span.Duration, span.Error)
		case graph.TraceEventEdgeTraversal:
			e.log().Debug("%s -> %s", span.FromNode, span.ToNode)
		}
	})
}
