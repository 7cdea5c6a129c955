package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// upsertBatchSize bounds the number of points sent per Upsert request.
const upsertBatchSize = 100

// QdrantConfig holds connection details for the Qdrant gRPC API.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	host   string
	port   int
	logger *slog.Logger
}

var _ Index = (*QdrantStorage)(nil)

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, cfg QdrantConfig, logger *slog.Logger) (*QdrantStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client: client,
		host:   cfg.Host,
		port:   cfg.Port,
		logger: logger,
	}

	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}

	return nil
}

// EnsureCollection creates the collection with the given size and distance if it is missing.
// Idempotent - an existing collection is left untouched and not re-validated.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	distance, err := qdrantDistance(spec.Metric)
	if err != nil {
		return s.fail("ensure", spec.Name, err)
	}

	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return s.fail("ensure", spec.Name, fmt.Errorf("failed to list collections: %w", err))
	}

	for _, name := range collections {
		if name == spec.Name {
			s.logger.Info("Collection already exists", "collection", spec.Name)
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return s.fail("ensure", spec.Name, fmt.Errorf("failed to create collection: %w", err))
	}

	s.logger.Info("Collection created", "collection", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
	return nil
}

// Upsert stores chunks in batches of 100, waiting for each batch to be persisted.
// Every call assigns new point IDs, so re-ingesting a document duplicates it.
func (s *QdrantStorage) Upsert(ctx context.Context, collection string, chunks []EmbeddedChunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = uuid.New().String()
	}

	for i := 0; i < len(chunks); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, newPoint(ids[j], chunks[j]))
		}

		if err := s.upsertWithRetry(ctx, collection, points); err != nil {
			return nil, s.fail("upsert", collection, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err))
		}
	}

	s.logger.Info("Upserted points", "collection", collection, "count", len(chunks))
	return ids, nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return retryable(err)
	}

	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Search performs vector similarity search and returns up to k scored passages.
func (s *QdrantStorage) Search(ctx context.Context, collection string, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false), // Don't need vectors in response
	})
	if err != nil {
		if isNotFoundStatus(err) {
			err = fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
		}
		return nil, s.fail("search", collection, fmt.Errorf("failed to search points: %w", err))
	}

	results := make([]Result, 0, len(points))
	for _, point := range points {
		results = append(results, resultFromPoint(point))
	}

	return results, nil
}

// CollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStorage) CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		if isNotFoundStatus(err) {
			err = fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
		}
		return nil, s.fail("info", collection, fmt.Errorf("failed to get collection: %w", err))
	}

	return &CollectionInfo{
		PointsCount: info.GetPointsCount(),
	}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStorage) fail(op, collection string, err error) error {
	s.logger.Error("Qdrant operation failed", "op", op, "collection", collection, "host", s.host, "port", s.port, "error", err)
	return &IndexError{Op: op, Collection: collection, Err: err}
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func qdrantDistance(m Metric) (qdrant.Distance, error) {
	switch m {
	case MetricCosine, "":
		return qdrant.Distance_Cosine, nil
	case MetricDot:
		return qdrant.Distance_Dot, nil
	case MetricEuclid:
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
}

// newPoint builds the point payload: {original_text, meta: {source, chunk, title}}.
func newPoint(id string, c EmbeddedChunk) *qdrant.PointStruct {
	meta := map[string]any{
		"source": c.Chunk.Source,
		"chunk":  c.Chunk.Ordinal,
	}
	if c.Chunk.Title != "" {
		meta["title"] = c.Chunk.Title
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectors(c.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"original_text": c.Chunk.Text,
			"meta":          meta,
		}),
	}
}

func resultFromPoint(point *qdrant.ScoredPoint) Result {
	payload := point.GetPayload()
	fields := payload["meta"].GetStructValue().GetFields()

	return Result{
		ID:   point.GetId().GetUuid(),
		Text: payload["original_text"].GetStringValue(),
		Meta: Meta{
			Source: fields["source"].GetStringValue(),
			Chunk:  int(fields["chunk"].GetIntegerValue()),
			Title:  fields["title"].GetStringValue(),
		},
		Score: float64(point.GetScore()), // Qdrant returns float32, convert to float64
	}
}

// retryable marks err permanent unless Qdrant may accept the same request later.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return err
	case codes.NotFound:
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrCollectionNotFound, err))
	default:
		return backoff.Permanent(err)
	}
}

func isNotFoundStatus(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}
