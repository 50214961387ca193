// Package server exposes the question answering pipeline over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/rag/ingest"
	"github.com/smallnest/ragchat/store"
)

// Pipeline answers questions. *engine.Engine implements it.
type Pipeline interface {
	Answer(ctx context.Context, question string) (*rag.State, error)
	AnswerStream(ctx context.Context, question string) (*rag.State, *generator.Stream, error)
	Record(ctx context.Context, state rag.State, outcome generator.Outcome) error
	History() store.HistoryStore
}

// Chatter holds a conversation without retrieval. *generator.Generator implements it.
type Chatter interface {
	ChatStream(ctx context.Context, message string) *generator.Stream
}

// Ingester loads a source into the vector store. *ingest.Ingester implements it.
type Ingester interface {
	Ingest(ctx context.Context, source string) (*ingest.Report, error)
}

// Options configures a Server.
type Options struct {
	Pipeline Pipeline
	Chatter  Chatter
	Ingester Ingester // optional; POST /ingest answers 501 without it

	// DefaultSource is ingested when POST /ingest has no source.
	DefaultSource string

	// CORSOrigins defaults to http://localhost:3000.
	CORSOrigins []string

	Logger log.Logger
}

// Server is the HTTP surface.
type Server struct {
	pipeline      Pipeline
	chatter       Chatter
	ingester      Ingester
	defaultSource string
	logger        log.Logger
	router        *gin.Engine
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if opts.Chatter == nil {
		return nil, fmt.Errorf("chatter is required")
	}

	s := &Server{
		pipeline:      opts.Pipeline,
		chatter:       opts.Chatter,
		ingester:      opts.Ingester,
		defaultSource: opts.DefaultSource,
		logger:        opts.Logger,
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	corsConfig := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders:    []string{RequestIDHeader, OutcomeHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if err := corsConfig.Validate(); err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(opts.Logger))
	r.Use(cors.New(corsConfig))

	s.registerRoutes(r)
	s.router = r
	return s, nil
}

func (s *Server) registerRoutes(r gin.IRouter) {
	r.GET("/healthz", s.health)
	r.POST("/query", s.query)
	r.POST("/query/stream", s.queryStream)
	r.POST("/chat", s.chat)
	r.POST("/ingest", s.ingest)
	r.GET("/history", s.listHistory)
	r.GET("/history/:id", s.getHistory)
	r.DELETE("/history/:id", s.deleteHistory)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.OrDefault(s.logger).Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.OrDefault(s.logger).Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
