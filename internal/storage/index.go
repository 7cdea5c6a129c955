package storage

import (
	"context"
	"errors"
	"fmt"
)

// Index is the vector collection lifecycle owned by the Index Manager.
type Index interface {
	// EnsureCollection creates the collection unless one with the same name exists.
	// An existing collection is not re-validated.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// Upsert stores chunks under fresh IDs and returns them in input order.
	// It returns once the backend acknowledges the write.
	Upsert(ctx context.Context, collection string, chunks []EmbeddedChunk) ([]string, error)

	// Search returns at most k results, best first.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]Result, error)

	CollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)
	Health(ctx context.Context) error
	Close() error
}

// CheckDimension compares an embedder's dimension with the collection's.
// Called once when the collection is ensured.
func CheckDimension(spec CollectionSpec, embedderDim int) error {
	if spec.Dimension != embedderDim {
		return &IndexError{
			Op:         "ensure",
			Collection: spec.Name,
			Err:        fmt.Errorf("%w: embedder produces %d, collection expects %d", ErrDimensionMismatch, embedderDim, spec.Dimension),
		}
	}
	return nil
}

// IsNotFound reports whether err means the collection does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}
