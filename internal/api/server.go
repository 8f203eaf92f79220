// Package api exposes one loaded model over a small OpenAI-flavoured
// HTTP surface: streaming and synchronous generation, embedding
// extraction, and a health probe. All inference goes through a single
// session, so concurrent requests are served in arrival order.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/emberml/ember/internal/logger"
	"github.com/emberml/ember/internal/session"
	"github.com/emberml/ember/internal/version"
)

// Server handles the HTTP surface for one session.
type Server struct {
	sess     *session.Session
	log      logger.Logger
	model    string
	defaults session.Params
	clock    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithDefaults sets the sampling defaults applied when a request omits
// a field.
func WithDefaults(p session.Params) Option {
	return func(s *Server) { s.defaults = p }
}

// NewServer wraps sess. model is the identifier echoed in payloads.
func NewServer(sess *session.Session, model string, opts ...Option) *Server {
	s := &Server{
		sess:     sess,
		log:      logger.Nop(),
		model:    model,
		defaults: session.DefaultParams(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.POST("/v1/embeddings", s.handleEmbeddings)
	e.GET("/healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"model":         s.model,
		"embedding_dim": s.sess.EmbeddingDim(),
		"context_len":   s.sess.ContextLen(),
		"version":       version.String(),
	})
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		return writeBadRequest(c, "prompt or messages is required")
	}
	if req.Prompt != "" && len(req.Messages) > 0 {
		return writeBadRequest(c, "prompt and messages are mutually exclusive")
	}

	id := "gen-" + uuid.NewString()
	created := s.clock().Unix()

	// The stream is bound to the request context, so a dropped client
	// cancels generation at the next decode boundary.
	st, err := s.sess.Generate(c.Request().Context(), req.prompt(), req.params(s.defaults))
	if err != nil {
		return writeSessionError(c, err)
	}

	if req.Stream != nil && *req.Stream {
		return s.streamGenerate(c, st, id, created)
	}

	text, err := st.Text()
	if err != nil {
		return writeSessionError(c, err)
	}
	return c.JSON(http.StatusOK, GenerateResponse{
		ID:           id,
		Object:       "generation",
		Created:      created,
		Model:        s.model,
		Text:         text,
		FinishReason: finishReason(st.State()),
	})
}

// streamGenerate pushes fragments as SSE events, flushing after each
// one so tokens reach the client as they decode.
func (s *Server) streamGenerate(c *echo.Context, st *session.Stream, id string, created int64) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	flusher, ok := res.(interface{ Flush() })
	if !ok {
		st.Cancel()
		return writeError(c, http.StatusInternalServerError, "server_error", "streaming unsupported")
	}

	for frag := range st.Tokens() {
		chunk := GenerateChunk{
			ID:      id,
			Object:  "generation.chunk",
			Created: created,
			Model:   s.model,
			Delta:   frag,
		}
		if err := sendSSE(res, chunk); err != nil {
			st.Cancel()
			return err
		}
		flusher.Flush()
	}

	if err := st.Err(); err != nil {
		s.log.Warn("generation stream failed", "stream", st.ID(), "error", err)
		_ = sendSSE(res, map[string]any{"error": err.Error()})
		flusher.Flush()
		return nil
	}

	final := GenerateChunk{
		ID:           id,
		Object:       "generation.chunk",
		Created:      created,
		Model:        s.model,
		FinishReason: finishReason(st.State()),
	}
	_ = sendSSE(res, final)
	_, _ = fmt.Fprint(res, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

func (s *Server) handleEmbeddings(c *echo.Context) error {
	req, err := decodeJSON[EmbeddingsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Input) == 0 {
		return writeBadRequest(c, "input is required")
	}

	data := make([]Embedding, 0, len(req.Input))
	for i, text := range req.Input {
		vec, err := s.sess.Embed(c.Request().Context(), text)
		if err != nil {
			return writeSessionError(c, err)
		}
		data = append(data, Embedding{
			Object:    "embedding",
			Index:     i,
			Embedding: vec,
		})
	}
	return c.JSON(http.StatusOK, EmbeddingsResponse{
		Object: "list",
		Model:  s.model,
		Data:   data,
	})
}

func finishReason(st session.State) string {
	switch st {
	case session.StateCompleted:
		return "stop"
	case session.StateCancelled:
		return "cancelled"
	default:
		return "error"
	}
}
