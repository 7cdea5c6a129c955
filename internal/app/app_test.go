package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-chat-server/internal/config"
	"github.com/bull/rag-chat-server/internal/document"
	ghclient "github.com/bull/rag-chat-server/internal/github"
	"github.com/bull/rag-chat-server/internal/storage"
)

type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (lengthEmbedder) Dimension() int { return 2 }

func TestParseGitHubRef(t *testing.T) {
	owner, repo, path, err := ParseGitHubRef("acme/kb/docs/en")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "kb", repo)
	assert.Equal(t, "docs/en", path)

	_, _, path, err = ParseGitHubRef("acme/kb")
	require.NoError(t, err)
	assert.Empty(t, path)

	_, _, _, err = ParseGitHubRef("acme")
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()

	src, err := NewSource(cfg, SourceOptions{})
	require.NoError(t, err)
	dir, ok := src.(*document.DirSource)
	require.True(t, ok)
	assert.Equal(t, "data", dir.Root)
	assert.Equal(t, "*.txt", dir.Pattern)

	src, err = NewSource(cfg, SourceOptions{GitHub: "acme/kb/docs"})
	require.NoError(t, err)
	assert.IsType(t, &ghclient.Fetcher{}, src)
}

func TestMemoryBuildEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("Paris is the capital of France."), 0o644))

	cfg := config.Default()
	cfg.Index.Backend = config.BackendMemory
	cfg.Index.Dimension = 2

	var logs bytes.Buffer
	logger := NewLogger(cfg, &logs)

	ctx := context.Background()
	index, err := OpenIndex(ctx, cfg, logger)
	require.NoError(t, err)
	defer index.Close()

	pipeline, err := NewPipeline(cfg, lengthEmbedder{}, index, logger)
	require.NoError(t, err)

	src, err := NewSource(cfg, SourceOptions{Dir: root})
	require.NoError(t, err)

	result, err := pipeline.Build(ctx, src, CollectionSpec(cfg).Name)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalChunks)

	info, err := index.CollectionInfo(ctx, storage.DefaultCollectionName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointsCount)
	assert.Contains(t, logs.String(), `"msg":"Indexing complete"`)
}

func TestOpenIndex_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Backend = "faiss"

	var logs bytes.Buffer
	_, err := OpenIndex(context.Background(), cfg, NewLogger(cfg, &logs))
	assert.Error(t, err)
}
