package storage

import (
	"errors"
	"fmt"
)

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUnknownMetric      = errors.New("unknown distance metric")
)

// IndexError is the typed failure returned by Index operations.
type IndexError struct {
	Op         string // "ensure", "upsert", "search", "info"
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s %q: %v", e.Op, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
