// Package llm provides the embedding and text generation backends used by the
// ingestion pipeline and the answer orchestrator.
//
// Two interchangeable implementations exist: a hosted Gemini backend and an
// OpenAI-compatible backend that talks either to OpenAI or to a locally hosted
// feature-extraction model (Ollama, text-embeddings-inference). The backend is
// chosen once by NewProvider at process start.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

const (
	// ProviderGemini selects the hosted Google Gemini API.
	ProviderGemini = "gemini"

	// ProviderLocal selects an OpenAI-compatible endpoint serving a local model.
	ProviderLocal = "local"

	// ProviderOpenAI selects the hosted OpenAI API.
	ProviderOpenAI = "openai"

	// DefaultDimension matches the vector collection dimensionality of this deployment.
	DefaultDimension = 768
)

var (
	// ErrNoGenerator is returned by Generate when no chat model is configured.
	ErrNoGenerator = errors.New("no generation model configured")

	// ErrMissingCredentials is a configuration error for hosted backends without an API key.
	ErrMissingCredentials = errors.New("missing model credentials")

	// ErrUnknownProvider is a configuration error for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Embedder converts texts into fixed-length vectors, preserving input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Provider is the capability pair selected at startup.
type Provider interface {
	Embedder
	Generator
	Name() string
}

// EmbedError reports which input failed to embed. The whole batch is discarded.
type EmbedError struct {
	Index int // Index of the first text covered by the failing request
	Err   error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("embed text %d: %v", e.Index, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// Config selects and configures a provider.
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	EmbeddingModel    string
	ChatModel         string
	Dimension         int
	BatchSize         int
	RequestsPerSecond float64
}

// NewProvider builds the provider named by cfg.Provider.
// Errors returned here are configuration errors and should stop the process.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg, logger)
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingCredentials, cfg.Provider)
		}
		return NewOpenAIProvider(cfg, logger), nil
	case ProviderLocal:
		return NewOpenAIProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// newLimiter returns a limiter pacing outbound calls; rps <= 0 disables pacing.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// checkDimensions verifies every vector has the configured length.
func checkDimensions(vectors [][]float32, offset, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return &EmbedError{
				Index: offset + i,
				Err:   fmt.Errorf("got %d dimensions, expected %d", len(v), dim),
			}
		}
	}
	return nil
}
