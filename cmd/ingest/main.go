// Package main provides the ingest CLI: build the vector collection and administer sessions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/rag-chat-server/internal/app"
	"github.com/bull/rag-chat-server/internal/config"
	ghclient "github.com/bull/rag-chat-server/internal/github"
	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/session"
	"github.com/bull/rag-chat-server/internal/storage"
)

var (
	configFile string
	buildOpts  app.SourceOptions
	collection string
	forceReset bool
)

var rootCmd = &cobra.Command{
	Use:           "rag-ingest",
	Short:         "Build the RAG collection and manage chat sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Chunk, embed and store documents",
	Long: `Reads documents, splits them into overlapping chunks, embeds every chunk and
upserts them into the vector collection. Running build twice stores the
documents twice.

Documents come from a local directory (--dir, --pattern) or from a GitHub
repository directory (--github owner/repo/path). Markdown files are converted
to plain text first.

Environment variables:
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  LLM_PROVIDER     gemini, local or openai (default: local)
  GEMINI_API_KEY   required for gemini
  OPENAI_API_KEY   required for openai
  GITHUB_TOKEN     GitHub token for higher rate limits (optional)`,
	RunE: runBuild,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the vector collection size",
	RunE:  runStatus,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect or clear stored chat histories",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every stored history as JSON",
	RunE:  runSessionsList,
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the whole session database",
	RunE:  runSessionsReset,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "YAML config file")

	buildCmd.Flags().StringVar(&buildOpts.Dir, "dir", "", "directory to read documents from (default: data)")
	buildCmd.Flags().StringVar(&buildOpts.Pattern, "pattern", "", `glob relative to --dir (default: "*.txt")`)
	buildCmd.Flags().StringVar(&buildOpts.GitHub, "github", "", "read documents from owner/repo[/path] instead of --dir")
	buildCmd.Flags().StringVar(&collection, "collection", "", "collection name (default: rag-collection)")
	statusCmd.Flags().StringVar(&collection, "collection", "", "collection name (default: rag-collection)")
	sessionsResetCmd.Flags().BoolVar(&forceReset, "force", false, "confirm clearing the whole Redis database")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsResetCmd)
	rootCmd.AddCommand(buildCmd, statusCmd, sessionsCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if collection != "" {
		cfg.Index.Collection = collection
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, app.NewLogger(cfg, os.Stderr), nil
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	start := time.Now()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	provider, err := llm.NewProvider(ctx, cfg.ProviderConfig(), logger)
	if err != nil {
		return err
	}

	index, err := app.OpenIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	source, err := app.NewSource(cfg, buildOpts)
	if err != nil {
		return err
	}
	if fetcher, ok := source.(*ghclient.Fetcher); ok {
		if sha, err := fetcher.LatestCommitSHA(ctx); err == nil {
			fmt.Printf("Source commit: %s\n", sha)
		} else {
			logger.Warn("Could not resolve source commit", "error", err)
		}
	}

	pipeline, err := app.NewPipeline(cfg, provider, index, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Building collection %q with provider %s...\n", cfg.Index.Collection, provider.Name())
	result, err := pipeline.Build(ctx, source, cfg.Index.Collection)
	if err != nil {
		var embedErr *llm.EmbedError
		if errors.As(err, &embedErr) {
			return fmt.Errorf("embedding failed at chunk %d, nothing stored: %w", embedErr.Index, err)
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Build complete!")
	fmt.Printf("  Documents: %d\n", result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	index, err := app.OpenIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	info, err := index.CollectionInfo(ctx, cfg.Index.Collection)
	if storage.IsNotFound(err) {
		fmt.Printf("Collection %q does not exist. Run 'rag-ingest build' first.\n", cfg.Index.Collection)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Collection: %s\n", cfg.Index.Collection)
	fmt.Printf("  Points: %d\n", info.PointsCount)
	fmt.Printf("  Dimension: %d\n", cfg.Index.Dimension)
	fmt.Printf("  Metric: %s\n", cfg.Metric())
	return nil
}

func openSessions(ctx context.Context) (*session.Store, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.Connect(ctx, cfg.Redis.URL, logger)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	store, err := openSessions(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	histories, err := store.ListAll(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(histories)
}

func runSessionsReset(cmd *cobra.Command, _ []string) error {
	if !forceReset {
		return errors.New("reset clears the whole Redis database; pass --force to confirm")
	}

	store, err := openSessions(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Session store cleared")
	return nil
}
