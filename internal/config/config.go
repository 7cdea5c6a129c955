// Package config loads server and ingestion settings from an optional YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bull/rag-chat-server/internal/chunker"
	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/storage"
)

// Index backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig configures the HTTP and WebSocket listener.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	IngestOnStart  bool     `yaml:"ingest_on_start"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	Metric     string `yaml:"metric"`
}

// RedisConfig locates the session store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ChunkerConfig sizes the sliding window.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// LLMConfig selects the embedding and generation backend.
type LLMConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	ChatModel         string  `yaml:"chat_model"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// RAGConfig tunes retrieval and model calls.
type RAGConfig struct {
	TopK        int           `yaml:"top_k"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// IngestConfig locates the documents to index.
type IngestConfig struct {
	DataDir string `yaml:"data_dir"`
	Pattern string `yaml:"pattern"`
}

// GitHubConfig authenticates the GitHub document source.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// Config is the root configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Index    IndexConfig   `yaml:"index"`
	Redis    RedisConfig   `yaml:"redis"`
	Chunker  ChunkerConfig `yaml:"chunker"`
	LLM      LLMConfig     `yaml:"llm"`
	RAG      RAGConfig     `yaml:"rag"`
	Ingest   IngestConfig  `yaml:"ingest"`
	GitHub   GitHubConfig  `yaml:"github"`
	LogLevel string        `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Index: IndexConfig{
			Backend:    BackendQdrant,
			Host:       "localhost",
			Port:       6334,
			Collection: storage.DefaultCollectionName,
			Dimension:  storage.DefaultVectorDimension,
			Metric:     string(storage.MetricCosine),
		},
		Redis:    RedisConfig{URL: "redis://localhost:6379/0"},
		Chunker:  ChunkerConfig{Size: chunker.DefaultSize, Overlap: chunker.DefaultOverlap},
		LLM:      LLMConfig{Provider: llm.ProviderLocal},
		RAG:      RAGConfig{TopK: rag.DefaultTopK, CallTimeout: rag.DefaultCallTimeout},
		Ingest:   IngestConfig{DataDir: "data", Pattern: "*.txt"},
		LogLevel: "info",
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	cfg.Server.IngestOnStart = getEnvBool("INGEST_ON_START", cfg.Server.IngestOnStart)

	cfg.Index.Backend = getEnv("INDEX_BACKEND", cfg.Index.Backend)
	cfg.Index.Host = getEnv("QDRANT_HOST", cfg.Index.Host)
	cfg.Index.Port = getEnvInt("QDRANT_PORT", cfg.Index.Port)
	cfg.Index.APIKey = getEnv("QDRANT_API_KEY", cfg.Index.APIKey)
	cfg.Index.UseTLS = getEnvBool("QDRANT_USE_TLS", cfg.Index.UseTLS)
	cfg.Index.Collection = getEnv("QDRANT_COLLECTION", cfg.Index.Collection)
	cfg.Index.Dimension = getEnvInt("VECTOR_DIMENSION", cfg.Index.Dimension)
	cfg.Index.Metric = getEnv("DISTANCE_METRIC", cfg.Index.Metric)

	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)

	cfg.Chunker.Size = getEnvInt("CHUNK_SIZE", cfg.Chunker.Size)
	cfg.Chunker.Overlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunker.Overlap)

	// USE_GEMINI is the older switch; LLM_PROVIDER wins when both are set.
	if getEnvBool("USE_GEMINI", false) {
		cfg.LLM.Provider = llm.ProviderGemini
	}
	cfg.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLM.Provider))
	switch cfg.LLM.Provider {
	case llm.ProviderGemini:
		cfg.LLM.APIKey = getEnv("GEMINI_API_KEY", cfg.LLM.APIKey)
		cfg.LLM.ChatModel = getEnv("GEMINI_LLM", cfg.LLM.ChatModel)
	case llm.ProviderOpenAI:
		cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.ChatModel = getEnv("CHAT_MODEL", cfg.LLM.ChatModel)
	cfg.LLM.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.LLM.BatchSize)

	cfg.RAG.TopK = getEnvInt("TOP_K", cfg.RAG.TopK)
	cfg.RAG.CallTimeout = getEnvDuration("CALL_TIMEOUT", cfg.RAG.CallTimeout)

	cfg.Ingest.DataDir = getEnv("DATA_DIR", cfg.Ingest.DataDir)
	cfg.Ingest.Pattern = getEnv("DATA_PATTERN", cfg.Ingest.Pattern)

	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Validate reports configuration that would fail at the first request.
func (c *Config) Validate() error {
	var errs []error

	if err := chunker.Validate(c.Chunker.Size, c.Chunker.Overlap); err != nil {
		errs = append(errs, err)
	}
	switch c.LLM.Provider {
	case llm.ProviderGemini, llm.ProviderLocal, llm.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", llm.ErrUnknownProvider, c.LLM.Provider))
	}
	switch c.Index.Backend {
	case BackendQdrant, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}
	if _, err := storage.ParseMetric(c.Index.Metric); err != nil {
		errs = append(errs, err)
	}
	if c.Index.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vector dimension must be positive, got %d", c.Index.Dimension))
	}
	if c.Index.Collection == "" {
		errs = append(errs, errors.New("collection name is required"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.RAG.CallTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ProviderConfig converts the LLM section for llm.NewProvider.
func (c *Config) ProviderConfig() llm.Config {
	return llm.Config{
		Provider:          c.LLM.Provider,
		APIKey:            c.LLM.APIKey,
		BaseURL:           c.LLM.BaseURL,
		EmbeddingModel:    c.LLM.EmbeddingModel,
		ChatModel:         c.LLM.ChatModel,
		Dimension:         c.Index.Dimension,
		BatchSize:         c.LLM.BatchSize,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
	}
}

// QdrantConfig converts the index section for storage.NewQdrantStorage.
func (c *Config) QdrantConfig() storage.QdrantConfig {
	return storage.QdrantConfig{
		Host:   c.Index.Host,
		Port:   c.Index.Port,
		APIKey: c.Index.APIKey,
		UseTLS: c.Index.UseTLS,
	}
}

// Metric returns the parsed distance metric. Call after Validate.
func (c *Config) Metric() storage.Metric {
	m, _ := storage.ParseMetric(c.Index.Metric)
	return m
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are seconds.
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
