package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

var errEmptyInput = errors.New("input must not be empty")

// makeAskHandler creates the ask tool handler. Answers never fail; degraded
// answers carry a placeholder text.
func makeAskHandler(o Orchestrator) func(context.Context, *mcp.CallToolRequest, AskInput) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
		question := strings.TrimSpace(input.Question)
		if question == "" {
			return nil, AskOutput{}, fmt.Errorf("question: %w", errEmptyInput)
		}

		ans := o.Answer(ctx, question)
		return nil, AskOutput{Answer: ans.Answer, Sources: ans.Sources}, nil
	}
}

// makeSearchHandler creates the search_passages tool handler.
func makeSearchHandler(o Orchestrator) func(context.Context, *mcp.CallToolRequest, SearchPassagesInput) (*mcp.CallToolResult, SearchPassagesOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SearchPassagesInput) (*mcp.CallToolResult, SearchPassagesOutput, error) {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return nil, SearchPassagesOutput{}, fmt.Errorf("query: %w", errEmptyInput)
		}

		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		results, err := o.Retrieve(ctx, query, maxResults)
		if err != nil {
			return nil, SearchPassagesOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			return nil, SearchPassagesOutput{
				Results: []storage.Result{},
				Message: "No matching passages found. Has the collection been built?",
			}, nil
		}

		return nil, SearchPassagesOutput{Results: results}, nil
	}
}

// makeListSessionsHandler creates the list_sessions tool handler.
func makeListSessionsHandler(lister SessionLister) func(context.Context, *mcp.CallToolRequest, ListSessionsInput) (*mcp.CallToolResult, ListSessionsOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListSessionsInput) (*mcp.CallToolResult, ListSessionsOutput, error) {
		histories, err := lister.ListAll(ctx)
		if err != nil {
			return nil, ListSessionsOutput{}, fmt.Errorf("failed to list sessions: %w", err)
		}
		if histories == nil {
			histories = []session.History{}
		}

		return nil, ListSessionsOutput{Sessions: histories, Count: len(histories)}, nil
	}
}
