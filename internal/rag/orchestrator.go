// Package rag answers questions from the indexed collection: embed the question,
// retrieve the nearest passages, prompt the generator with them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/rag-chat-server/internal/llm"
	"github.com/bull/rag-chat-server/internal/storage"
)

const (
	// DefaultTopK is the number of passages retrieved per question.
	DefaultTopK = 5

	// DefaultCallTimeout bounds each embedding, search and generation call.
	DefaultCallTimeout = 30 * time.Second
)

// Placeholder answers returned instead of an error.
const (
	NoModelAnswer     = "No model configured"
	UnavailableAnswer = "The assistant could not be consulted right now. Please try again later."
)

// Answer is the outcome of one question. Sources is never nil.
type Answer struct {
	Answer  string           `json:"answer"`
	Sources []storage.Result `json:"sources"`
}

// Options tune retrieval.
type Options struct {
	Collection  string
	TopK        int
	CallTimeout time.Duration
}

// Orchestrator runs the retrieve-then-generate flow.
type Orchestrator struct {
	embedder   llm.Embedder
	generator  llm.Generator
	index      storage.Index
	collection string
	topK       int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator. Zero options fall back to defaults.
func NewOrchestrator(embedder llm.Embedder, generator llm.Generator, index storage.Index, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Collection == "" {
		opts.Collection = storage.DefaultCollectionName
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Orchestrator{
		embedder:   embedder,
		generator:  generator,
		index:      index,
		collection: opts.Collection,
		topK:       opts.TopK,
		timeout:    opts.CallTimeout,
		logger:     logger,
	}
}

// Answer never fails. Retrieval problems leave the context empty; generation
// problems are replaced by a placeholder text.
func (o *Orchestrator) Answer(ctx context.Context, question string) Answer {
	sources, err := o.Retrieve(ctx, question, o.topK)
	if err != nil {
		o.logger.Warn("Retrieval failed, answering without context", "error", err)
		sources = []storage.Result{}
	}

	prompt := BuildPrompt(question, sources)

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.generator.Generate(genCtx, prompt)
	switch {
	case errors.Is(err, llm.ErrNoGenerator):
		return Answer{Answer: NoModelAnswer, Sources: sources}
	case err != nil:
		o.logger.Error("Generation failed", "error", err)
		return Answer{Answer: UnavailableAnswer, Sources: sources}
	case strings.TrimSpace(text) == "":
		o.logger.Warn("Generation returned empty text")
		return Answer{Answer: UnavailableAnswer, Sources: sources}
	}

	return Answer{Answer: text, Sources: sources}
}

// Retrieve embeds query and returns up to k passages, best first.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, k int) ([]storage.Result, error) {
	embedCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	vectors, err := o.embedder.Embed(embedCtx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors", len(vectors))
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, o.timeout)
	defer cancelSearch()

	results, err := o.index.Search(searchCtx, o.collection, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if results == nil {
		results = []storage.Result{}
	}
	return results, nil
}
