package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-chat-server/internal/chunker"
	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "rag-collection", cfg.Index.Collection)
	assert.Equal(t, 768, cfg.Index.Dimension)
	assert.Equal(t, storage.MetricCosine, cfg.Metric())
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 30*time.Second, cfg.RAG.CallTimeout)
	assert.Equal(t, llm.ProviderLocal, cfg.LLM.Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Index, cfg.Index)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
index:
  backend: memory
  metric: dot
chunker:
  size: 500
  overlap: 50
rag:
  call_timeout: 5s
`), 0o644))

	t.Setenv("CHUNK_OVERLAP", "100")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
	assert.Equal(t, storage.MetricDot, cfg.Metric())
	assert.Equal(t, 500, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, 5*time.Second, cfg.RAG.CallTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.Index.Host, "unset fields keep defaults")
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_GeminiSwitch(t *testing.T) {
	t.Setenv("USE_GEMINI", "true")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("GEMINI_LLM", "gemini-pro")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg, err := Load("")
	require.NoError(t, err)

	pc := cfg.ProviderConfig()
	assert.Equal(t, llm.ProviderGemini, pc.Provider)
	assert.Equal(t, "g-key", pc.APIKey)
	assert.Equal(t, "gemini-pro", pc.ChatModel)
	assert.Equal(t, 768, pc.Dimension)
}

func TestLoad_CallTimeoutSeconds(t *testing.T) {
	t.Setenv("CALL_TIMEOUT", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.RAG.CallTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		is     error
	}{
		{"overlap equals size", func(c *Config) { c.Chunker.Overlap = c.Chunker.Size }, chunker.ErrInvalidChunking},
		{"negative overlap", func(c *Config) { c.Chunker.Overlap = -1 }, chunker.ErrInvalidChunking},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "mystery" }, llm.ErrUnknownProvider},
		{"unknown metric", func(c *Config) { c.Index.Metric = "manhattan" }, storage.ErrUnknownMetric},
		{"unknown backend", func(c *Config) { c.Index.Backend = "faiss" }, ErrInvalidConfig},
		{"zero top k", func(c *Config) { c.RAG.TopK = 0 }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	assert.Equal(t, slog.LevelInfo, cfg.Level())

	cfg.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.Level())

	cfg.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
