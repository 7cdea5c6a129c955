package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/rag-chat-server/internal/chunker"
	"github.com/bull/rag-chat-server/internal/document"
	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/storage"
)

// ErrNoDocuments is returned when a source yields nothing to index.
var ErrNoDocuments = errors.New("no documents to index")

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	Collection  string
	TotalDocs   int
	TotalChunks int
	Duration    time.Duration
}

// Pipeline chunks, embeds and stores documents in one batch.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  llm.Embedder
	index     storage.Index
	dimension int
	metric    storage.Metric
	logger    *slog.Logger
}

// NewPipeline creates a new indexing pipeline. Collections it creates use the given
// dimension and metric.
func NewPipeline(
	c *chunker.Chunker,
	embedder llm.Embedder,
	index storage.Index,
	dimension int,
	metric storage.Metric,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:   c,
		embedder:  embedder,
		index:     index,
		dimension: dimension,
		metric:    metric,
		logger:    logger,
	}
}

// Build indexes every document of source into collection.
// Embedding happens before the collection is touched, so a failed embedding
// leaves the index unchanged.
func (p *Pipeline) Build(ctx context.Context, source document.Source, collection string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{Collection: collection}

	docs, err := source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	result.TotalDocs = len(docs)
	p.logger.Info("Found documents", "count", len(docs))

	var chunks []chunker.Chunk
	for _, doc := range docs {
		docChunks := p.chunker.ChunkDocument(doc.ID, doc.Title, doc.Content)
		p.logger.Debug("Chunked document", "source", doc.ID, "chunks", len(docChunks))
		chunks = append(chunks, docChunks...)
	}
	result.TotalChunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	p.logger.Info("Embedded chunks", "count", len(vectors))

	spec := storage.CollectionSpec{Name: collection, Dimension: p.dimension, Metric: p.metric}
	if err := storage.CheckDimension(spec, p.embedder.Dimension()); err != nil {
		return nil, err
	}
	if err := p.index.EnsureCollection(ctx, spec); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	embedded := make([]storage.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		embedded[i] = storage.EmbeddedChunk{Vector: vectors[i], Chunk: c}
	}

	if _, err := p.index.Upsert(ctx, collection, embedded); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Indexing complete",
		"collection", collection,
		"documents", result.TotalDocs,
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}
