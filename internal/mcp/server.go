package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

// ErrMissingAnswerer is returned by NewServer without an Orchestrator.
var ErrMissingAnswerer = errors.New("mcp server requires an answerer")

// Orchestrator answers questions and retrieves passages.
type Orchestrator interface {
	Answer(ctx context.Context, question string) rag.Answer
	Retrieve(ctx context.Context, query string, k int) ([]storage.Result, error)
}

// SessionLister enumerates stored chat histories.
type SessionLister interface {
	ListAll(ctx context.Context) ([]session.History, error)
}

// Config holds server dependencies. Sessions is optional.
type Config struct {
	Orchestrator Orchestrator
	Sessions     SessionLister
	Version      string
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Orchestrator == nil {
		return nil, ErrMissingAnswerer
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "rag-chat-server",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documents. Returns the answer and the passages used as context.",
	}, makeAskHandler(cfg.Orchestrator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_passages",
		Description: "Semantic search over the indexed documents. Returns matching passages with source and score, without generating an answer.",
	}, makeSearchHandler(cfg.Orchestrator))

	if cfg.Sessions != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "list_sessions",
			Description: "List the chat history of every active session.",
		}, makeListSessionsHandler(cfg.Sessions))
	}

	return &Server{server: server}, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
