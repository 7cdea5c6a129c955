package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultGeminiEmbeddingModel produces 768-dimension vectors.
	DefaultGeminiEmbeddingModel = "text-embedding-004"

	// DefaultGeminiChatModel is used when GEMINI_LLM is not set.
	DefaultGeminiChatModel = "gemini-1.5-flash"
)

// geminiModels is the subset of *genai.Models used by the provider.
type geminiModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider embeds and generates through the hosted Gemini API.
// Embeddings are requested one text at a time.
type GeminiProvider struct {
	models         geminiModels
	embeddingModel string
	chatModel      string
	dimension      int
	limiter        *rate.Limiter
	logger         *slog.Logger
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini client from cfg.
func NewGeminiProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingCredentials, ProviderGemini)
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiProvider(client.Models, cfg, logger), nil
}

func newGeminiProvider(models geminiModels, cfg Config, logger *slog.Logger) *GeminiProvider {
	if logger == nil {
		logger = slog.Default()
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultGeminiEmbeddingModel
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultGeminiChatModel
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	return &GeminiProvider{
		models:         models,
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
		dimension:      dim,
		limiter:        newLimiter(cfg.RequestsPerSecond),
		logger:         logger,
	}
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Dimension returns the configured vector length.
func (p *GeminiProvider) Dimension() int { return p.dimension }

// Embed embeds each text with its own request, in input order.
// The first failure aborts the batch.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dim := int32(p.dimension)

	for i, text := range texts {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &EmbedError{Index: i, Err: err}
		}

		var values []float32
		err := retry(ctx, func() error {
			resp, err := p.models.EmbedContent(ctx, p.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
				OutputDimensionality: &dim,
			})
			if err != nil {
				return err
			}
			if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
				return errors.New("empty embedding response")
			}
			values = resp.Embeddings[0].Values
			return nil
		}, isGeminiRateLimit)
		if err != nil {
			p.logger.Warn("Embedding request failed", "provider", ProviderGemini, "index", i, "error", err)
			return nil, &EmbedError{Index: i, Err: err}
		}
		vectors = append(vectors, values)
	}

	if err := checkDimensions(vectors, 0, p.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Generate sends prompt to the chat model and returns the response text.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.chatModel == "" {
		return "", ErrNoGenerator
	}

	resp, err := p.models.GenerateContent(ctx, p.chatModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if resp == nil {
		return "", errors.New("gemini returned no response")
	}

	return resp.Text(), nil
}

func isGeminiRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	return false
}
