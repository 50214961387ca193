package main

import (
	"context"
	"fmt"

	"github.com/smallnest/ragchat/config"
	"github.com/smallnest/ragchat/llms/huggingface"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/analyzer"
	"github.com/smallnest/ragchat/rag/engine"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/rag/ingest"
	"github.com/smallnest/ragchat/rag/retriever"
	"github.com/smallnest/ragchat/rag/splitter"
	ragstore "github.com/smallnest/ragchat/rag/store"
	"github.com/smallnest/ragchat/store"
	"github.com/smallnest/ragchat/store/memory"
	"github.com/smallnest/ragchat/store/postgres"
	"github.com/smallnest/ragchat/store/redis"
	"github.com/smallnest/ragchat/store/sqlite"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// provider is a chat model that can also embed text.
type provider interface {
	llms.Model
	embeddings.EmbedderClient
}

// app holds the wired components.
type app struct {
	cfg       *config.Config
	logger    log.Logger
	model     provider
	embedder  rag.Embedder
	vectors   rag.VectorStore
	history   store.HistoryStore
	generator *generator.Generator
	engine    *engine.Engine
	ingester  *ingest.Ingester
	closers   []func()
}

// newApp wires every component. On error, connections opened so far are closed.
func newApp(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.model, err = newProvider(cfg, logger); err != nil {
		return nil, err
	}
	if a.embedder, err = embeddings.NewEmbedder(a.model); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if err = a.openVectorStore(ctx); err != nil {
		return nil, err
	}
	if err = a.openHistory(ctx); err != nil {
		return nil, err
	}

	a.generator = generator.New(a.model, generator.WithLogger(log.Named(logger, "generate")))

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithInvalidSectionPolicy(cfg.Policy()),
	}
	if !cfg.Pipeline.QueryAnalysis {
		opts = append(opts, engine.WithoutQueryAnalysis())
	}
	if a.history != nil {
		opts = append(opts, engine.WithHistory(a.history))
	}
	a.engine, err = engine.New(
		analyzer.New(a.model, analyzer.WithLogger(logger)),
		retriever.New(a.embedder, a.vectors,
			retriever.WithK(cfg.Pipeline.TopK),
			retriever.WithCallbacks(log.NewCallbackHandler(logger))),
		a.generator,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	sp, err := splitter.New(
		splitter.WithChunkSize(cfg.Ingest.ChunkSize),
		splitter.WithChunkOverlap(cfg.Ingest.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}
	a.ingester, err = ingest.New(a.embedder, a.vectors, ingest.WithSplitter(sp), ingest.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newProvider(cfg *config.Config, logger log.Logger) (provider, error) {
	handler := log.NewCallbackHandler(logger)

	switch cfg.LLM.Provider {
	case "huggingface":
		opts := []huggingface.Option{
			huggingface.WithToken(cfg.LLM.HuggingFaceToken),
			huggingface.WithModel(cfg.LLM.Model),
			huggingface.WithEmbeddingModel(cfg.LLM.EmbeddingModel),
			huggingface.WithMaxTokens(cfg.LLM.MaxTokens),
			huggingface.WithCallbacks(handler),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, huggingface.WithBaseURL(cfg.LLM.BaseURL))
		}
		return huggingface.New(opts...)
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.LLM.OpenAIKey),
			openai.WithModel(cfg.LLM.Model),
			openai.WithEmbeddingModel(cfg.LLM.EmbeddingModel),
			openai.WithCallback(handler),
		}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

func (a *app) openVectorStore(ctx context.Context) error {
	vc := a.cfg.VectorStore
	switch vc.Type {
	case "memory":
		a.vectors = ragstore.NewMemoryStore()
	case "postgres":
		s, err := ragstore.NewPGVectorStore(ctx, ragstore.PGVectorOptions{
			ConnString: vc.DatabaseURL,
			Collection: vc.Collection,
			Dimensions: vc.Dimensions,
		})
		if err != nil {
			return fmt.Errorf("vector store: %w", err)
		}
		a.vectors = s
		a.closers = append(a.closers, s.Close)
	case "redis":
		s := ragstore.NewRedisStore(ragstore.RedisOptions{
			Addr:       vc.RedisAddr,
			Collection: vc.Collection,
		})
		a.vectors = s
		a.closers = append(a.closers, func() { _ = s.Close() })
	default:
		return fmt.Errorf("unknown vector store %q", vc.Type)
	}
	return nil
}

func (a *app) openHistory(ctx context.Context) error {
	hc := a.cfg.History
	switch hc.Type {
	case "none", "":
	case "memory":
		a.history = memory.NewMemoryHistoryStore()
	case "sqlite":
		s, err := sqlite.NewSqliteHistoryStore(sqlite.SqliteOptions{Path: hc.Path})
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		a.history = s
		a.closers = append(a.closers, func() { _ = s.Close() })
	case "redis":
		s := redis.NewRedisHistoryStore(redis.RedisOptions{Addr: a.cfg.VectorStore.RedisAddr})
		a.history = s
		a.closers = append(a.closers, func() { _ = s.Close() })
	case "postgres":
		s, err := postgres.NewPostgresHistoryStore(ctx, postgres.PostgresOptions{ConnString: a.cfg.VectorStore.DatabaseURL})
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.InitSchema(ctx); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		a.history = s
	default:
		return fmt.Errorf("unknown history store %q", hc.Type)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
