package api

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Sessions  string `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by storage.Index.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Pinger is implemented by session.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports vector store and session store connectivity.
// Either dependency being down yields 503.
func NewHealthHandler(index HealthChecker, sessions Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Qdrant:    "connected",
			Sessions:  "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if err := index.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Qdrant = "disconnected"
			code = http.StatusServiceUnavailable
		}
		if err := sessions.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Sessions = "disconnected"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, response)
	}
}
