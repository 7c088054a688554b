// Package index defines the approximate nearest neighbor index contract.
package index

import (
	"errors"
	"fmt"
)

// ErrInvalidK is returned when a search is requested with k < 1.
var ErrInvalidK = errors.New("index: k must be at least 1")

// ErrEmptyVector is returned when an empty vector is inserted or queried.
var ErrEmptyVector = errors.New("index: vector must not be empty")

// ErrDimensionMismatch is returned when a vector's length does not match the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SearchResult is a single nearest neighbor hit.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Index is an approximate nearest neighbor index over caller-assigned IDs.
// Implementations must be safe for concurrent use.
type Index interface {
	// Insert adds a vector under the given ID. Inserting an ID that is
	// already present is a no-op.
	Insert(id uint64, v []float32) error

	// Delete removes the ID from search results. Deleting an absent ID is
	// a no-op.
	Delete(id uint64)

	// KNNSearch returns up to k nearest neighbors of q, ordered by ascending
	// distance, ties broken by ascending ID. ef bounds the candidate list;
	// values below k are raised to k.
	KNNSearch(q []float32, k int, ef int) ([]SearchResult, error)

	// Contains reports whether the ID is live in the index.
	Contains(id uint64) bool

	// Len returns the number of live vectors.
	Len() int

	// Dimension returns the vector dimensionality.
	Dimension() int
}
