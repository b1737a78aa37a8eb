package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/chat"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/reflection"
	"github.com/aretw0/mindgraph/pkg/stream"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Engine is the part of mindgraph.Engine the server needs.
type Engine interface {
	SubmitStreaming(ctx context.Context, threadID, input string, rc domain.RunContext) <-chan stream.Frame
	UIHistory(ctx context.Context, threadID string, rc domain.RunContext) ([]chat.UIMessage, error)
	Threads(ctx context.Context, rc domain.RunContext) ([]string, error)
	DeleteThread(ctx context.Context, threadID string, rc domain.RunContext) error
	Reflect(ctx context.Context, threadID, message string, rc domain.RunContext) (*reflection.Graph, error)
}

// Server serves an Engine.
type Server struct {
	Engine  Engine
	Events  *Broker
	auth    Authenticator
	limits  RateLimits
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithAuthenticator replaces HeaderAuthenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithRateLimits bounds how often each caller may hit each route.
func WithRateLimits(l RateLimits) Option {
	return func(s *Server) {
		s.limits = l
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithBroker serves the broker's events on GET /events. Register
// Broker.Hooks on the engine so checkpoints reach it.
func WithBroker(b *Broker) Option {
	return func(s *Server) {
		s.Events = b
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, auth: HeaderAuthenticator, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.With(s.limit(s.limits.Chat)).Post("/chat", s.Chat)
		r.With(s.limit(s.limits.Flow)).Post("/flow", s.Flow)
		r.With(s.limit(s.limits.Threads)).Get("/threads", s.ListThreads)
		r.With(s.limit(s.limits.History)).Get("/threads/{id}/history", s.GetHistory)
		r.With(s.limit(s.limits.Delete)).Delete("/threads/{id}", s.DeleteThread)
		if s.Events != nil {
			r.Get("/events", s.SubscribeEvents)
		}
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)
		w.Header().Set("Access-Control-Expose-Headers", stream.HeaderName+", "+ThreadHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runContextKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, err := s.auth(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), runContextKey{}, rc)))
	})
}

func runContext(r *http.Request) domain.RunContext {
	rc, _ := r.Context().Value(runContextKey{}).(domain.RunContext)
	return rc
}

// ThreadHeader names the thread a chat response belongs to.
const ThreadHeader = "X-Thread-ID"

// ChatMessage is one message of an AI SDK chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the AI SDK useChat body. The thread is taken from threadId,
// then id; a new one is created when both are empty.
type ChatRequest struct {
	ID       string        `json:"id,omitempty"`
	ThreadID string        `json:"threadId,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

func (c ChatRequest) thread() string {
	if c.ThreadID != "" {
		return c.ThreadID
	}
	if c.ID != "" {
		return c.ID
	}
	return uuid.NewString()
}

// question is the newest user message. Earlier messages are already part of
// the thread's checkpoints.
func (c ChatRequest) question() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == "user" || c.Messages[i].Role == string(domain.RoleHuman) {
			return c.Messages[i].Content
		}
	}
	return ""
}

// FlowRequest asks for a reflection over message.
type FlowRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
}

// FlowResponse carries the reflection graph and its thread.
type FlowResponse struct {
	ThreadID string `json:"threadId"`
	*reflection.Graph
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		return badRequest{msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// Chat handles POST /chat.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var body ChatRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	question := body.question()
	if strings.TrimSpace(question) == "" {
		s.writeError(w, r, badRequest{msg: "no user message to answer"})
		return
	}
	threadID := body.thread()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(stream.HeaderName, stream.HeaderValue)
	w.Header().Set(ThreadHeader, threadID)
	w.WriteHeader(http.StatusOK)

	frames := s.Engine.SubmitStreaming(r.Context(), threadID, question, runContext(r))
	if err := stream.WriteTo(w, frames); err != nil {
		s.logger.Warn("Chat stream interrupted", "thread_id", threadID, "error", err)
	}
}

// Flow handles POST /flow.
func (s *Server) Flow(w http.ResponseWriter, r *http.Request) {
	var body FlowRequest
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeError(w, r, badRequest{msg: "message is required"})
		return
	}
	if body.ThreadID == "" {
		body.ThreadID = uuid.NewString()
	}

	g, err := s.Engine.Reflect(r.Context(), body.ThreadID, body.Message, runContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FlowResponse{ThreadID: body.ThreadID, Graph: g})
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Engine.Threads(r.Context(), runContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"threads": threads})
}

// GetHistory handles GET /threads/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Engine.UIHistory(r.Context(), chi.URLParam(r, "id"), runContext(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// DeleteThread handles DELETE /threads/{id}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.DeleteThread(r.Context(), chi.URLParam(r, "id"), runContext(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"app":     "mindgraph-http",
		"version": mindgraph.Version,
	})
}

// SubscribeEvents handles GET /events?threadId=... (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("threadId")
	if threadID == "" {
		s.writeError(w, r, badRequest{msg: "threadId is required"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Events.Subscribe(mindgraph.ThreadKey(threadID, runContext(r)))
	defer cancel()
	s.logger.Debug("SSE: Subscribed", "thread_id", threadID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE: Client disconnected", "thread_id", threadID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: checkpoint\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// statusOf maps engine errors to HTTP status codes.
func statusOf(err error) int {
	var bad badRequest
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidThreadID):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrThreadBusy):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}
