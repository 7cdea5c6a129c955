// Package mcp exposes question answering and session listing as MCP tools.
package mcp

import (
	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	// Question is answered from the indexed collection.
	Question string `json:"question" jsonschema:"the question to answer from the indexed documents"`
}

// AskOutput contains the generated answer and the passages it was grounded on.
type AskOutput struct {
	Answer  string           `json:"answer"`
	Sources []storage.Result `json:"sources"`
}

// SearchPassagesInput defines the input parameters for the search_passages tool.
type SearchPassagesInput struct {
	// Query is embedded and matched against stored passages.
	Query string `json:"query" jsonschema:"the semantic search query"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of passages to return (default 5, at most 20)"`
}

// SearchPassagesOutput contains the matching passages, best first.
type SearchPassagesOutput struct {
	Results []storage.Result `json:"results"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// ListSessionsInput takes no parameters.
type ListSessionsInput struct{}

// ListSessionsOutput contains every stored chat history.
type ListSessionsOutput struct {
	Sessions []session.History `json:"sessions"`
	Count    int               `json:"count"`
}
