package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/reflection"
)

// ThreadsURI is the resource listing known threads.
const ThreadsURI = "mindgraph://threads"

// Engine is the part of mindgraph.Engine the MCP server needs.
type Engine interface {
	Submit(ctx context.Context, threadID, input string, rc domain.RunContext) (domain.Message, error)
	History(ctx context.Context, threadID string, rc domain.RunContext) ([]domain.Message, error)
	Reflect(ctx context.Context, threadID, message string, rc domain.RunContext) (*reflection.Graph, error)
	Threads(ctx context.Context, rc domain.RunContext) ([]string, error)
}

// ChatArgs are the arguments of the chat tool.
type ChatArgs struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// ChatResult is the structured output of the chat tool.
type ChatResult struct {
	ThreadID string `json:"thread_id" jsonschema_description:"Thread the answer belongs to"`
	Answer   string `json:"answer" jsonschema_description:"The assistant answer"`
}

// HistoryArgs are the arguments of the history tool.
type HistoryArgs struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id,omitempty"`
}

// HistoryResult is the structured output of the history tool.
type HistoryResult struct {
	ThreadID string           `json:"thread_id"`
	Messages []domain.Message `json:"messages" jsonschema_description:"Persisted messages in order"`
}

// ReflectArgs are the arguments of the reflect tool.
type ReflectArgs struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// ReflectResult is the structured output of the reflect tool.
type ReflectResult struct {
	ThreadID string                 `json:"thread_id"`
	Nodes    []reflection.GraphNode `json:"nodes"`
	Edges    []reflection.GraphEdge `json:"edges"`
}

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance. A nil logger discards output.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("mindgraph-mcp", mindgraph.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on port until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Ask the journal assistant a question. The conversation continues on the given thread."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The question")),
		mcp.WithString("thread_id", mcp.Description("Thread to continue; a new thread is created when omitted")),
		mcp.WithString("user_id", mcp.Description("Owner of the journal")),
		mcp.WithOutputSchema[ChatResult](),
	), mcp.NewStructuredToolHandler(s.handleChat))

	s.mcpServer.AddTool(mcp.NewTool("history",
		mcp.WithDescription("Read the persisted messages of a thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id")),
		mcp.WithString("user_id", mcp.Description("Owner of the thread")),
		mcp.WithOutputSchema[HistoryResult](),
	), mcp.NewStructuredToolHandler(s.handleHistory))

	s.mcpServer.AddTool(mcp.NewTool("reflect",
		mcp.WithDescription("Extract themes, emotions and goals from the journal and connect them into a graph."),
		mcp.WithString("message", mcp.Required(), mcp.Description("What to reflect on, or feedback on a previous reflection")),
		mcp.WithString("thread_id", mcp.Description("Reflection thread to revise; a new one is created when omitted")),
		mcp.WithString("user_id", mcp.Description("Owner of the journal")),
		mcp.WithOutputSchema[ReflectResult](),
	), mcp.NewStructuredToolHandler(s.handleReflect))
}

func (s *Server) handleChat(ctx context.Context, _ mcp.CallToolRequest, args ChatArgs) (ChatResult, error) {
	if args.Message == "" {
		return ChatResult{}, errors.New("message is required")
	}
	if args.ThreadID == "" {
		args.ThreadID = uuid.NewString()
	}
	answer, err := s.engine.Submit(ctx, args.ThreadID, args.Message, domain.RunContext{UserID: args.UserID})
	if err != nil {
		s.logger.Warn("MCP chat failed", "thread_id", args.ThreadID, "error", err)
		return ChatResult{}, fmt.Errorf("chat failed: %w", err)
	}
	return ChatResult{ThreadID: args.ThreadID, Answer: answer.Content}, nil
}

func (s *Server) handleHistory(ctx context.Context, _ mcp.CallToolRequest, args HistoryArgs) (HistoryResult, error) {
	msgs, err := s.engine.History(ctx, args.ThreadID, domain.RunContext{UserID: args.UserID})
	if err != nil {
		return HistoryResult{}, fmt.Errorf("history failed: %w", err)
	}
	return HistoryResult{ThreadID: args.ThreadID, Messages: msgs}, nil
}

func (s *Server) handleReflect(ctx context.Context, _ mcp.CallToolRequest, args ReflectArgs) (ReflectResult, error) {
	if args.Message == "" {
		return ReflectResult{}, errors.New("message is required")
	}
	if args.ThreadID == "" {
		args.ThreadID = uuid.NewString()
	}
	g, err := s.engine.Reflect(ctx, args.ThreadID, args.Message, domain.RunContext{UserID: args.UserID})
	if err != nil {
		s.logger.Warn("MCP reflect failed", "thread_id", args.ThreadID, "error", err)
		return ReflectResult{}, fmt.Errorf("reflect failed: %w", err)
	}
	return ReflectResult{ThreadID: args.ThreadID, Nodes: g.Nodes, Edges: g.Edges}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(ThreadsURI, "Conversation threads",
		mcp.WithResourceDescription("Ids of the persisted conversation threads that belong to no user"),
		mcp.WithMIMEType("application/json"),
	), s.readThreads)
}

func (s *Server) readThreads(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	threads, err := s.engine.Threads(ctx, domain.RunContext{})
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	raw, err := json.Marshal(threads)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ThreadsURI,
			MIMEType: "application/json",
			Text:     string(raw),
		},
	}, nil
}
