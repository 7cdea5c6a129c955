package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	// DefaultOpenAIEmbeddingModel is used against the hosted OpenAI API.
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

	// DefaultLocalEmbeddingModel is a 768-dimension model served by Ollama.
	DefaultLocalEmbeddingModel = "nomic-embed-text"

	// DefaultLocalBaseURL is Ollama's OpenAI-compatible endpoint.
	DefaultLocalBaseURL = "http://localhost:11434/v1"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

// OpenAIProvider embeds and generates through an OpenAI-compatible API.
// With ProviderLocal it targets a locally hosted model and sends one text per request.
type OpenAIProvider struct {
	client         *openai.Client
	name           string
	embeddingModel string
	chatModel      string
	dimension      int
	batchSize      int
	sendDimensions bool
	limiter        *rate.Limiter
	logger         *slog.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider from cfg. Extra request options are appended
// after the ones derived from cfg.
func NewOpenAIProvider(cfg Config, logger *slog.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Provider
	if name == "" {
		name = ProviderLocal
	}

	var reqOpts []option.RequestOption
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	baseURL := cfg.BaseURL
	if baseURL == "" && name == ProviderLocal {
		baseURL = DefaultLocalBaseURL
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultLocalEmbeddingModel
		if name == ProviderOpenAI {
			model = DefaultOpenAIEmbeddingModel
		}
	}

	// Local servers usually lack batch support, so they get one text per request.
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
		if name == ProviderOpenAI {
			batchSize = DefaultBatchSize
		}
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	client := openai.NewClient(reqOpts...)
	return &OpenAIProvider{
		client:         &client,
		name:           name,
		embeddingModel: model,
		chatModel:      cfg.ChatModel,
		dimension:      dim,
		batchSize:      batchSize,
		sendDimensions: name == ProviderOpenAI,
		limiter:        newLimiter(cfg.RequestsPerSecond),
		logger:         logger,
	}
}

// Name returns the provider name ("local" or "openai").
func (p *OpenAIProvider) Name() string { return p.name }

// Dimension returns the configured vector length.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Embed generates embeddings for texts in batches, preserving order.
// Rate limit errors (HTTP 429) are retried with exponential backoff.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += p.batchSize {
		end := min(i+p.batchSize, len(texts))

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &EmbedError{Index: i, Err: err}
		}
		vectors, err := p.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			p.logger.Warn("Embedding request failed", "provider", p.name, "index", i, "batch", end-i, "error", err)
			return nil, &EmbedError{Index: i, Err: err}
		}
		if err := checkDimensions(vectors, i, p.dimension); err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}

	return all, nil
}

func (p *OpenAIProvider) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(p.embeddingModel),
	}
	if p.sendDimensions {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	err := retry(ctx, func() error {
		resp, err := p.client.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts))
		}

		// The API reports each vector's input position; do not rely on response order.
		data := resp.Data
		sort.SliceStable(data, func(a, b int) bool { return data[a].Index < data[b].Index })

		embeddings = make([][]float32, len(data))
		for i, d := range data {
			embeddings[i] = toFloat32(d.Embedding)
		}
		return nil
	}, isRateLimitError)

	return embeddings, err
}

// Generate sends prompt as a single user message and returns the reply text.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.chatModel == "" {
		return "", ErrNoGenerator
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(p.chatModel),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
