// Package embedding wraps an externally supplied molecular embedding model
// and provides deterministic Matryoshka-style truncation: the vector at a
// shorter supported length is the re-normalized prefix of the full-length
// vector, so no model call is ever needed for shorter lengths.
package embedding

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/chemvec/chemvec/distance"
)

// DefaultLengths is the supported embedding length set of the Chem-MRL
// model family, ascending. The last entry is the full trained dimensionality.
var DefaultLengths = []int{2, 4, 8, 16, 32, 64, 128, 256, 512, 768, 1024}

// ErrUnavailable indicates that the external embedding model was unreachable
// or returned malformed output. It is retryable by the caller with backoff;
// the embedder itself never retries because it cannot distinguish transient
// from permanent causes.
//
// The underlying cause (if any) can be accessed via errors.Unwrap.
type ErrUnavailable struct {
	Reason string
	cause  error
}

func (e *ErrUnavailable) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("embedding unavailable: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("embedding unavailable: %s", e.Reason)
}

func (e *ErrUnavailable) Unwrap() error { return e.cause }

// ErrUnsupportedLength indicates a requested length outside the configured
// supported set.
type ErrUnsupportedLength struct {
	Length int
}

func (e *ErrUnsupportedLength) Error() string {
	return fmt.Sprintf("unsupported embedding length: %d", e.Length)
}

// Provider is the narrow contract for the external embedding model:
// canonical molecule string in, raw float vector out, explicit error.
// Implementations must be deterministic for a frozen model version and
// return a vector of the full trained dimensionality.
type Provider interface {
	Embed(ctx context.Context, canonical string) ([]float32, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, canonical string) ([]float32, error)

// Embed calls f.
func (f ProviderFunc) Embed(ctx context.Context, canonical string) ([]float32, error) {
	return f(ctx, canonical)
}

// Options represents the options for configuring an Embedder.
type Options struct {
	// Lengths is the supported length set, ascending. The last entry must
	// equal the provider's output dimensionality.
	Lengths []int

	// Timeout bounds each provider call. Zero disables the bound and the
	// caller-supplied context governs alone.
	Timeout time.Duration
}

var DefaultOptions = Options{
	Lengths: DefaultLengths,
	Timeout: 30 * time.Second,
}

// Embedder converts canonical molecule strings into unit-normalized
// embedding vectors and truncates them to shorter supported lengths.
type Embedder struct {
	provider Provider
	lengths  []int
	timeout  time.Duration
}

// New creates a new Embedder around the given provider.
func New(provider Provider, optFns ...func(o *Options)) (*Embedder, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if provider == nil {
		return nil, fmt.Errorf("embedding: nil provider")
	}
	if len(opts.Lengths) == 0 {
		return nil, fmt.Errorf("embedding: empty length set")
	}

	lengths := slices.Clone(opts.Lengths)
	slices.Sort(lengths)
	if lengths[0] <= 0 {
		return nil, fmt.Errorf("embedding: lengths must be positive")
	}
	if len(slices.Compact(slices.Clone(lengths))) != len(lengths) {
		return nil, fmt.Errorf("embedding: duplicate lengths")
	}

	return &Embedder{
		provider: provider,
		lengths:  lengths,
		timeout:  opts.Timeout,
	}, nil
}

// Lengths returns the supported length set, ascending.
func (e *Embedder) Lengths() []int {
	return slices.Clone(e.lengths)
}

// FullLength returns the full trained dimensionality.
func (e *Embedder) FullLength() int {
	return e.lengths[len(e.lengths)-1]
}

// IsSupported reports whether length is in the supported set.
func (e *Embedder) IsSupported(length int) bool {
	_, ok := slices.BinarySearch(e.lengths, length)
	return ok
}

// EmbedFull obtains the full-length, unit-normalized embedding of a
// canonical molecule string from the external model. Unreachable providers
// and malformed output (wrong dimensionality, non-finite values) surface as
// *ErrUnavailable.
func (e *Embedder) EmbedFull(ctx context.Context, canonical string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vec, err := e.provider.Embed(ctx, canonical)
	if err != nil {
		return nil, &ErrUnavailable{Reason: "model call failed", cause: err}
	}

	if len(vec) != e.FullLength() {
		return nil, &ErrUnavailable{
			Reason: fmt.Sprintf("model returned dimension %d, want %d", len(vec), e.FullLength()),
		}
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, &ErrUnavailable{Reason: "model returned non-finite values"}
		}
	}

	out, ok := distance.NormalizeL2Copy(vec)
	if !ok {
		// Zero vectors pass through unchanged, mirroring the model service's
		// divide-by-one guard for zero norms.
		out = slices.Clone(vec)
	}
	return out, nil
}

// Truncate returns the length target prefix of vec, re-normalized to unit L2
// norm. It is pure and O(target); the output is consistent with the model's
// own output at the target length up to the model's training tolerance.
// A zero-norm prefix is returned as the zero vector.
func (e *Embedder) Truncate(vec []float32, target int) ([]float32, error) {
	if !e.IsSupported(target) {
		return nil, &ErrUnsupportedLength{Length: target}
	}
	if target > len(vec) {
		return nil, fmt.Errorf("embedding: cannot truncate length %d to %d", len(vec), target)
	}

	out, ok := distance.NormalizeL2Copy(vec[:target])
	if !ok {
		out = make([]float32, target)
	}
	return out, nil
}
