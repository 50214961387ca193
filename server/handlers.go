package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/engine"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/store"
)

// OutcomeHeader is the trailer telling whether a streamed answer came from
// the streaming call or from the fallback response.
const OutcomeHeader = "X-Outcome"

// QueryRequest is the body of /query, /query/stream and /chat.
type QueryRequest struct {
	Content string `json:"content"`
}

// QueryResponse is returned by POST /query.
type QueryResponse struct {
	Response string               `json:"response"`
	Query    string               `json:"query"`
	Search   *rag.StructuredQuery `json:"search,omitempty"`
	Sources  []string             `json:"sources,omitempty"`
}

// IngestRequest is the optional body of POST /ingest.
type IngestRequest struct {
	Source string `json:"source"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindContent decodes a QueryRequest and rejects blank content.
func (s *Server) bindContent(c *gin.Context) (string, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return "", false
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "content is required"})
		return "", false
	}
	return content, true
}

// fail maps pipeline errors to a status: 400 for a blank question, 502 for
// anything from the model, embedder or store.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, engine.ErrEmptyQuestion) {
		status = http.StatusBadRequest
	}
	log.OrDefault(s.logger).Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) query(c *gin.Context) {
	content, ok := s.bindContent(c)
	if !ok {
		return
	}

	state, err := s.pipeline.Answer(c.Request.Context(), content)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, QueryResponse{
		Response: state.Answer,
		Query:    content,
		Search:   state.Query,
		Sources:  state.Sources(),
	})
}

func (s *Server) queryStream(c *gin.Context) {
	content, ok := s.bindContent(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	state, stream, err := s.pipeline.AnswerStream(ctx, content)
	if err != nil {
		s.fail(c, err)
		return
	}

	answer, err := s.writeStream(c, stream)
	if err != nil {
		return
	}
	state.Answer = answer
	if err := s.pipeline.Record(ctx, *state, stream.Outcome()); err != nil {
		log.OrDefault(s.logger).Warn("history: %v", err)
	}
}

func (s *Server) chat(c *gin.Context) {
	content, ok := s.bindContent(c)
	if !ok {
		return
	}
	_, _ = s.writeStream(c, s.chatter.ChatStream(c.Request.Context(), content))
}

// writeStream sends fragments as chunked text/plain as they arrive and
// reports the outcome in the X-Outcome trailer. Headers are committed with the
// first fragment, so a stream that fails before producing anything is answered
// with 502 and an error payload. It returns the full text.
func (s *Server) writeStream(c *gin.Context, stream *generator.Stream) (string, error) {
	fragments := stream.Fragments()
	first, ok := <-fragments
	if !ok {
		if err := stream.Err(); err != nil {
			s.fail(c, err)
			return "", err
		}
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", OutcomeHeader)
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	var b strings.Builder
	writable := true
	write := func(fragment string) {
		b.WriteString(fragment)
		if !writable {
			return
		}
		if _, err := io.WriteString(c.Writer, fragment); err != nil {
			// The client is gone; the request context cancels the producer.
			writable = false
			return
		}
		c.Writer.Flush()
	}

	if ok {
		write(first)
		for fragment := range fragments {
			write(fragment)
		}
	}

	h.Set(OutcomeHeader, string(stream.Outcome()))
	if err := stream.Err(); err != nil {
		log.OrDefault(s.logger).Error("%s %s: stream: %v", c.Request.Method, c.Request.URL.Path, err)
		return b.String(), err
	}
	return b.String(), nil
}

func (s *Server) ingest(c *gin.Context) {
	if s.ingester == nil {
		c.JSON(http.StatusNotImplemented, errorResponse{Error: "ingestion is not configured"})
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = s.defaultSource
	}
	if source == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "source is required"})
		return
	}

	report, err := s.ingester.Ingest(c.Request.Context(), source)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) history(c *gin.Context) (store.HistoryStore, bool) {
	h := s.pipeline.History()
	if h == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "history is disabled"})
		return nil, false
	}
	return h, true
}

func (s *Server) listHistory(c *gin.Context) {
	h, ok := s.history(c)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	exchanges, err := h.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exchanges": exchanges})
}

func (s *Server) getHistory(c *gin.Context) {
	h, ok := s.history(c)
	if !ok {
		return
	}

	ex, err := h.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}

func (s *Server) deleteHistory(c *gin.Context) {
	h, ok := s.history(c)
	if !ok {
		return
	}

	if err := h.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
