package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process Index using brute-force search.
// Useful for local development without a Qdrant server and for tests.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	logger      *slog.Logger
}

type memoryCollection struct {
	spec    CollectionSpec
	entries []memoryEntry
}

type memoryEntry struct {
	id     string
	vector []float32
	result Result
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(logger *slog.Logger) *MemoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryIndex{
		collections: make(map[string]*memoryCollection),
		logger:      logger,
	}
}

// EnsureCollection creates the collection if it does not exist.
func (m *MemoryIndex) EnsureCollection(_ context.Context, spec CollectionSpec) error {
	if spec.Metric == "" {
		spec.Metric = MetricCosine
	}
	if _, err := ParseMetric(string(spec.Metric)); err != nil {
		return &IndexError{Op: "ensure", Collection: spec.Name, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[spec.Name]; ok {
		return nil
	}
	m.collections[spec.Name] = &memoryCollection{spec: spec}
	m.logger.Info("Collection created", "collection", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
	return nil
}

// Upsert appends chunks under fresh IDs.
func (m *MemoryIndex) Upsert(_ context.Context, collection string, chunks []EmbeddedChunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, m.fail("upsert", collection, ErrCollectionNotFound)
	}

	ids := make([]string, len(chunks))
	for i, ec := range chunks {
		ids[i] = uuid.New().String()
		c.entries = append(c.entries, memoryEntry{
			id:     ids[i],
			vector: append([]float32(nil), ec.Vector...),
			result: Result{
				ID:   ids[i],
				Text: ec.Chunk.Text,
				Meta: Meta{Source: ec.Chunk.Source, Chunk: ec.Chunk.Ordinal, Title: ec.Chunk.Title},
			},
		})
	}
	return ids, nil
}

// Search scores every entry and returns the best k.
// Cosine and dot order by descending similarity, euclid by ascending distance.
func (m *MemoryIndex) Search(_ context.Context, collection string, vector []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, m.fail("search", collection, ErrCollectionNotFound)
	}
	if len(vector) != c.spec.Dimension {
		return nil, m.fail("search", collection,
			fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), c.spec.Dimension))
	}

	scored := make([]Result, len(c.entries))
	for i, e := range c.entries {
		r := e.result
		r.Score = score(c.spec.Metric, e.vector, vector)
		scored[i] = r
	}

	higher := c.spec.Metric.HigherIsBetter()
	sort.SliceStable(scored, func(a, b int) bool {
		if higher {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Score < scored[b].Score
	})

	if k < 0 {
		k = 0
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// CollectionInfo returns the number of stored entries.
func (m *MemoryIndex) CollectionInfo(_ context.Context, collection string) (*CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, &IndexError{Op: "info", Collection: collection, Err: ErrCollectionNotFound}
	}
	return &CollectionInfo{PointsCount: uint64(len(c.entries))}, nil
}

// Health always succeeds.
func (m *MemoryIndex) Health(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

func (m *MemoryIndex) fail(op, collection string, err error) error {
	m.logger.Error("Index operation failed", "op", op, "collection", collection, "error", err)
	return &IndexError{Op: op, Collection: collection, Err: err}
}

func score(metric Metric, a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb, dist float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		dist += (x - y) * (x - y)
	}

	switch metric {
	case MetricDot:
		return dot
	case MetricEuclid:
		return math.Sqrt(dist)
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
