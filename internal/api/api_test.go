package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

type stubAnswerer struct {
	got string
}

func (s *stubAnswerer) Answer(_ context.Context, q string) rag.Answer {
	s.got = q
	return rag.Answer{
		Answer:  "42",
		Sources: []storage.Result{{Text: "the answer is 42", Meta: storage.Meta{Source: "data/h2g2.txt", Chunk: 1}, Score: 0.87}},
	}
}

type stubLister struct {
	histories []session.History
	err       error
}

func (s stubLister) ListAll(context.Context) ([]session.History, error) { return s.histories, s.err }

type stubCheck struct{ err error }

func (s stubCheck) Health(context.Context) error { return s.err }
func (s stubCheck) Ping(context.Context) error   { return s.err }

func TestChatHandler(t *testing.T) {
	answerer := &stubAnswerer{}
	handler := NewChatHandler(answerer, nil)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"question":" meaning of life? "}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "meaning of life?", answerer.got)
	assert.JSONEq(t, `{
		"answer": "42",
		"sources": [{"text": "the answer is 42", "meta": {"source": "data/h2g2.txt", "chunk": 1}, "score": 0.87}]
	}`, rec.Body.String())
}

func TestChatHandler_BadRequests(t *testing.T) {
	handler := NewChatHandler(&stubAnswerer{}, nil)

	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"invalid json", http.MethodPost, `{"question":`, http.StatusBadRequest},
		{"empty question", http.MethodPost, `{"question":"   "}`, http.StatusBadRequest},
		{"missing question", http.MethodPost, `{}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tt.method, "/chat", strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSessionsHandler(t *testing.T) {
	lister := stubLister{histories: []session.History{
		{SessionID: "abc", Turns: []session.Turn{{UserQuery: "hi", Answer: "hello"}}},
	}}

	rec := httptest.NewRecorder()
	NewSessionsHandler(lister, nil)(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"sessionId":"abc","history":[{"userquery":"hi","answer":"hello"}]}]`, rec.Body.String())
}

func TestSessionsHandler_EmptyAndFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSessionsHandler(stubLister{}, nil)(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewSessionsHandler(stubLister{err: errors.New("redis down")}, nil)(rec, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name     string
		index    error
		sessions error
		code     int
		qdrant   string
		redis    string
	}{
		{"all healthy", nil, nil, http.StatusOK, "connected", "connected"},
		{"qdrant down", errors.New("down"), nil, http.StatusServiceUnavailable, "disconnected", "connected"},
		{"redis down", nil, errors.New("down"), http.StatusServiceUnavailable, "connected", "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(stubCheck{tt.index}, stubCheck{tt.sessions})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.qdrant, resp.Qdrant)
			assert.Equal(t, tt.redis, resp.Sessions)
			assert.NotEmpty(t, resp.Timestamp)
		})
	}
}

func TestLandingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/ws")

	rec = httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
