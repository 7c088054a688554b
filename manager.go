package chemvec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/chemvec/chemvec/catalog"
	"github.com/chemvec/chemvec/embedding"
	"github.com/chemvec/chemvec/index"
	"github.com/chemvec/chemvec/index/hnsw"
)

// lengthIndex holds one embedding length's index state. Writers (insert,
// remove, build) serialize on mu; readers load the generation pointer
// without taking it, so queries are never blocked by a running build.
type lengthIndex struct {
	length int

	// graph is the current generation. Builds construct a replacement off
	// to the side and swap it in atomically.
	graph atomic.Pointer[hnsw.Graph]

	// present tracks the entry IDs live in the current generation.
	// Guarded by mu.
	present *roaring64.Bitmap

	mu sync.Mutex
}

// manager fans catalog mutations out to one ANN index per supported
// embedding length and routes searches to the right one.
type manager struct {
	byLength map[int]*lengthIndex
	lengths  []int

	embedder *embedding.Embedder
	opts     *options
}

func newManager(embedder *embedding.Embedder, opts *options) *manager {
	lengths := embedder.Lengths()

	byLength := make(map[int]*lengthIndex, len(lengths))
	for _, l := range lengths {
		byLength[l] = &lengthIndex{
			length:  l,
			present: roaring64.New(),
		}
	}

	return &manager{
		byLength: byLength,
		lengths:  lengths,
		embedder: embedder,
		opts:     opts,
	}
}

func (m *manager) lengthIndexFor(length int) (*lengthIndex, error) {
	li, ok := m.byLength[length]
	if !ok {
		return nil, &embedding.ErrUnsupportedLength{Length: length}
	}
	return li, nil
}

func (m *manager) newGraph(length int) (*hnsw.Graph, error) {
	return hnsw.New(func(o *hnsw.Options) {
		o.Dimension = length
		o.M = m.opts.m
		o.EFConstruction = m.opts.efConstruction
		o.Heuristic = m.opts.heuristic
		o.RandomSeed = m.opts.randomSeed
	})
}

// Insert adds the entry's truncated vector to the index for one length,
// lazily creating an empty generation. Inserting an already indexed entry
// is a no-op.
func (m *manager) Insert(ctx context.Context, length int, id catalog.EntryID, full []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	li, err := m.lengthIndexFor(length)
	if err != nil {
		return err
	}

	vec, err := m.embedder.Truncate(full, length)
	if err != nil {
		return err
	}

	li.mu.Lock()
	defer li.mu.Unlock()

	if li.present.Contains(uint64(id)) {
		return nil
	}

	g := li.graph.Load()
	if g == nil {
		g, err = m.newGraph(length)
		if err != nil {
			return err
		}
		li.graph.Store(g)
	}

	if err := g.Insert(uint64(id), vec); err != nil {
		return err
	}
	li.present.Add(uint64(id))
	return nil
}

// Remove drops the entry from one length's index. Removing an entry that
// was never indexed is a silent no-op.
func (m *manager) Remove(ctx context.Context, length int, id catalog.EntryID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	li, err := m.lengthIndexFor(length)
	if err != nil {
		return err
	}

	li.mu.Lock()
	defer li.mu.Unlock()

	if !li.present.Contains(uint64(id)) {
		return nil
	}

	if g := li.graph.Load(); g != nil {
		g.Delete(uint64(id))
	}
	li.present.Remove(uint64(id))
	return nil
}

// Build reindexes one length from a full catalog pass into a fresh graph
// and swaps it in atomically. Readers see either the old generation or the
// complete new one; on error the old generation stays in place. The writer
// lock is held for the whole build, so builds for one length serialize
// while other lengths proceed independently.
func (m *manager) Build(ctx context.Context, length int, cat *catalog.Store) error {
	li, err := m.lengthIndexFor(length)
	if err != nil {
		return err
	}

	li.mu.Lock()
	defer li.mu.Unlock()

	g, err := m.newGraph(length)
	if err != nil {
		return err
	}

	present := roaring64.New()
	for e := range cat.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		vec, err := m.embedder.Truncate(e.Vector, length)
		if err != nil {
			return fmt.Errorf("entry %d: %w", e.ID, err)
		}
		if err := g.Insert(uint64(e.ID), vec); err != nil {
			return fmt.Errorf("entry %d: %w", e.ID, err)
		}
		present.Add(uint64(e.ID))
	}

	li.graph.Store(g)
	li.present = present
	return nil
}

// Search queries one length's current generation. ErrIndexUnavailable is
// returned when no generation exists yet for that length.
func (m *manager) Search(ctx context.Context, length int, q []float32, k int) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	li, err := m.lengthIndexFor(length)
	if err != nil {
		return nil, err
	}

	g := li.graph.Load()
	if g == nil {
		return nil, &ErrIndexUnavailable{Length: length}
	}

	ef := m.opts.efSearch
	if ef < k {
		ef = k
	}

	res, err := g.KNNSearch(q, k, ef)
	if err != nil {
		return nil, translateError(err)
	}
	return res, nil
}

// Contains reports whether the entry is live in the current generation for
// the given length.
func (m *manager) Contains(length int, id catalog.EntryID) bool {
	li, ok := m.byLength[length]
	if !ok {
		return false
	}
	g := li.graph.Load()
	return g != nil && g.Contains(uint64(id))
}

// Len returns the number of live vectors in the current generation for the
// given length, zero when none exists.
func (m *manager) Len(length int) int {
	li, ok := m.byLength[length]
	if !ok {
		return 0
	}
	g := li.graph.Load()
	if g == nil {
		return 0
	}
	return g.Len()
}
