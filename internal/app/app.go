// Package app assembles the components shared by the server and the ingest CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bull/rag-chat-server/internal/chunker"
	"github.com/bull/rag-chat-server/internal/config"
	"github.com/bull/rag-chat-server/internal/document"
	ghclient "github.com/bull/rag-chat-server/internal/github"
	"github.com/bull/rag-chat-server/internal/indexer"
	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/storage"
)

// NewLogger returns a JSON logger at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// OpenIndex connects to the configured vector index backend.
func OpenIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Index, error) {
	switch cfg.Index.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory index; vectors are lost on exit")
		return storage.NewMemoryIndex(logger), nil
	case config.BackendQdrant:
		logger.Info("Connecting to Qdrant", "host", cfg.Index.Host, "port", cfg.Index.Port)
		return storage.NewQdrantStorage(ctx, cfg.QdrantConfig(), logger)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// CollectionSpec returns the collection the server queries and ingestion builds.
func CollectionSpec(cfg *config.Config) storage.CollectionSpec {
	return storage.CollectionSpec{
		Name:      cfg.Index.Collection,
		Dimension: cfg.Index.Dimension,
		Metric:    cfg.Metric(),
	}
}

// NewPipeline builds an ingestion pipeline from cfg.
func NewPipeline(cfg *config.Config, embedder llm.Embedder, index storage.Index, logger *slog.Logger) (*indexer.Pipeline, error) {
	c, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	return indexer.NewPipeline(c, embedder, index, cfg.Index.Dimension, cfg.Metric(), logger), nil
}

// SourceOptions selects where documents come from. GitHub takes precedence over Dir.
type SourceOptions struct {
	Dir     string
	Pattern string
	GitHub  string // owner/repo[/path]
}

// NewSource returns the document source described by opts.
func NewSource(cfg *config.Config, opts SourceOptions) (document.Source, error) {
	if opts.GitHub != "" {
		owner, repo, basePath, err := ParseGitHubRef(opts.GitHub)
		if err != nil {
			return nil, err
		}
		client, err := ghclient.NewClient(cfg.GitHub.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
		return ghclient.NewFetcher(client, owner, repo, basePath), nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = cfg.Ingest.DataDir
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = cfg.Ingest.Pattern
	}
	return document.NewDirSource(dir, pattern), nil
}

// ParseGitHubRef splits "owner/repo/optional/path".
func ParseGitHubRef(ref string) (owner, repo, basePath string, err error) {
	parts := strings.SplitN(strings.Trim(ref, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid GitHub reference %q, want owner/repo[/path]", ref)
	}
	if len(parts) == 3 {
		basePath = parts[2]
	}
	return parts[0], parts[1], basePath, nil
}
