package storage

import (
	"fmt"
	"strings"

	"github.com/bull/rag-chat-server/internal/chunker"
)

// DefaultCollectionName is the collection built by ingestion and queried at answer time.
const DefaultCollectionName = "rag-collection"

// DefaultVectorDimension is the embedding size used by this deployment.
const DefaultVectorDimension = 768

// Metric is a vector distance function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
	MetricEuclid Metric = "euclid"
)

// ParseMetric maps a configuration string to a Metric. Empty selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricDot, MetricEuclid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// HigherIsBetter reports whether larger scores mean closer vectors.
func (m Metric) HigherIsBetter() bool {
	return m != MetricEuclid
}

// CollectionSpec describes a vector collection.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// EmbeddedChunk pairs a chunk with its vector. ID is assigned by Upsert.
type EmbeddedChunk struct {
	ID     string
	Vector []float32
	Chunk  chunker.Chunk
}

// Meta is the positional metadata stored with every point.
type Meta struct {
	Source string `json:"source"`
	Chunk  int    `json:"chunk"`
	Title  string `json:"title,omitempty"`
}

// Result is one retrieved passage. Score is similarity for cosine and dot,
// distance for euclid.
type Result struct {
	ID    string  `json:"-"`
	Text  string  `json:"text"`
	Meta  Meta    `json:"meta"`
	Score float64 `json:"score"`
}

// CollectionInfo contains collection statistics.
type CollectionInfo struct {
	PointsCount uint64
}
