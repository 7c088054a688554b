package chemvec

import (
	"errors"
	"fmt"

	"github.com/chemvec/chemvec/catalog"
	"github.com/chemvec/chemvec/index"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrNotFound is returned when no catalog entry exists for an ID.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("engine is closed")
)

// ErrIndexUnavailable indicates that no index generation exists yet for the
// requested embedding length. Build or insert at that length first.
type ErrIndexUnavailable struct {
	Length int
}

func (e *ErrIndexUnavailable) Error() string {
	return fmt.Sprintf("index unavailable for length %d", e.Length)
}

// translateError maps internal package errors onto the public sentinels so
// callers can match with errors.Is.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
