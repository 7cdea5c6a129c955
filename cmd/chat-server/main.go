// Package main runs the chat server: WebSocket chat, synchronous HTTP endpoints and MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/bull/rag-chat-server/internal/api"
	"github.com/bull/rag-chat-server/internal/app"
	"github.com/bull/rag-chat-server/internal/chat"
	"github.com/bull/rag-chat-server/internal/config"
	"github.com/bull/rag-chat-server/internal/document"
	"github.com/bull/rag-chat-server/internal/llm"
	mcpserver "github.com/bull/rag-chat-server/internal/mcp"
	"github.com/bull/rag-chat-server/internal/rag"
	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := llm.NewProvider(ctx, cfg.ProviderConfig(), logger)
	if err != nil {
		return err
	}
	if err := storage.CheckDimension(app.CollectionSpec(cfg), provider.Dimension()); err != nil {
		return err
	}

	index, err := app.OpenIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	store, err := session.Connect(ctx, cfg.Redis.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to session store: %w", err)
	}
	defer store.Close()

	if cfg.Server.IngestOnStart {
		ingest(ctx, cfg, provider, index, logger)
	}

	orchestrator := rag.NewOrchestrator(provider, provider, index, rag.Options{
		Collection:  cfg.Index.Collection,
		TopK:        cfg.RAG.TopK,
		CallTimeout: cfg.RAG.CallTimeout,
	}, logger)

	hub := chat.NewHub(orchestrator, store, cfg.Server.AllowedOrigins, logger)

	mcpServer, err := mcpserver.NewServer(&mcpserver.Config{
		Orchestrator: orchestrator,
		Sessions:     store,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", api.NewLandingHandler())
	mux.Handle("/ws", hub)
	mux.HandleFunc("/chat", api.NewChatHandler(orchestrator, logger))
	mux.HandleFunc("/sessions", api.NewSessionsHandler(store, logger))
	mux.HandleFunc("/health", api.NewHealthHandler(index, store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcpServer, nil))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Hijacked WebSocket connections are not closed by Shutdown.
	srv.RegisterOnShutdown(hub.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "provider", provider.Name(), "collection", cfg.Index.Collection)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ingest builds the collection from the data directory. Failures are logged and
// the server keeps running against whatever the index already holds.
func ingest(ctx context.Context, cfg *config.Config, embedder llm.Embedder, index storage.Index, logger *slog.Logger) {
	pipeline, err := app.NewPipeline(cfg, embedder, index, logger)
	if err != nil {
		logger.Error("Startup ingestion skipped", "error", err)
		return
	}

	source := document.NewDirSource(cfg.Ingest.DataDir, cfg.Ingest.Pattern)
	if _, err := pipeline.Build(ctx, source, cfg.Index.Collection); err != nil {
		logger.Error("Startup ingestion failed", "dir", cfg.Ingest.DataDir, "error", err)
	}
}
