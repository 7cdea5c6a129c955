// Package api serves the synchronous HTTP endpoints of the chat server.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
)

// maxBodyBytes limits request bodies on POST /chat.
const maxBodyBytes = 1 << 20

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, question string) rag.Answer
}

// SessionLister enumerates stored chat histories.
type SessionLister interface {
	ListAll(ctx context.Context) ([]session.History, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// ErrorResponse is returned with every 4xx and 5xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewChatHandler answers a question synchronously: POST {question} → {answer, sources}.
func NewChatHandler(answerer Answerer, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
			return
		}
		question := strings.TrimSpace(req.Question)
		if question == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "question is required"})
			return
		}

		ans := answerer.Answer(r.Context(), question)
		logger.Info("Answered question", "sources", len(ans.Sources))
		writeJSON(w, http.StatusOK, ans)
	}
}

// NewSessionsHandler lists every stored history: GET → [{sessionId, history}].
func NewSessionsHandler(lister SessionLister, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
			return
		}

		histories, err := lister.ListAll(r.Context())
		if err != nil {
			logger.Error("Failed to list sessions", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list sessions"})
			return
		}
		if histories == nil {
			histories = []session.History{}
		}

		writeJSON(w, http.StatusOK, histories)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
