package chemvec

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chemvec/chemvec/blobstore"
	"github.com/chemvec/chemvec/catalog"
	"github.com/chemvec/chemvec/embedding"
	"github.com/chemvec/chemvec/smiles"
)

// Match is a similarity search hit. Distance is the cosine distance of the
// truncated embeddings; identical molecules score 0.
type Match struct {
	ID       catalog.EntryID
	SMILES   string
	Distance float32
}

// Engine is a molecular similarity search engine. It canonicalizes SMILES
// input, embeds molecules through an external model, and maintains one ANN
// index per supported embedding length.
//
// All methods are safe for concurrent use. Searches are never blocked by
// index builds.
type Engine struct {
	opts     options
	embedder *embedding.Embedder
	manager  *manager
	metrics  MetricsCollector
	logger   *Logger

	cat    atomic.Pointer[catalog.Store]
	closed atomic.Bool
}

// New creates an Engine around the given embedding provider.
func New(provider embedding.Provider, optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)

	embedder, err := embedding.New(provider, func(o *embedding.Options) {
		o.Lengths = opts.lengths
		o.Timeout = opts.embedTimeout
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:     opts,
		embedder: embedder,
		manager:  newManager(embedder, &opts),
		metrics:  opts.metricsCollector,
		logger:   opts.logger,
	}
	e.cat.Store(catalog.New())

	return e, nil
}

// Lengths returns the supported embedding lengths, ascending.
func (e *Engine) Lengths() []int {
	return e.embedder.Lengths()
}

// Len returns the number of molecules in the catalog.
func (e *Engine) Len() int {
	return e.cat.Load().Len()
}

// Close marks the engine closed. Subsequent operations fail with ErrClosed.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// FindSimilar returns up to k nearest neighbors of the molecule at the given
// embedding length, ordered by ascending distance. The query never mutates
// the catalog. When the query molecule itself is already indexed at that
// length, it is returned first at distance 0.
func (e *Engine) FindSimilar(ctx context.Context, raw string, length, k int) ([]Match, error) {
	start := time.Now()
	matches, err := e.findSimilar(ctx, raw, length, k)
	e.metrics.RecordSearch(length, k, time.Since(start), err)
	e.logger.LogSearch(ctx, length, k, len(matches), err)
	return matches, err
}

func (e *Engine) findSimilar(ctx context.Context, raw string, length, k int) ([]Match, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if k < 1 {
		return nil, ErrInvalidK
	}
	if !e.embedder.IsSupported(length) {
		return nil, &embedding.ErrUnsupportedLength{Length: length}
	}

	canonical, err := smiles.Canonicalize(raw)
	if err != nil {
		return nil, err
	}

	full, err := e.embedder.EmbedFull(ctx, canonical)
	if err != nil {
		return nil, err
	}
	q, err := e.embedder.Truncate(full, length)
	if err != nil {
		return nil, err
	}

	res, err := e.manager.Search(ctx, length, q, k)
	if err != nil {
		return nil, err
	}

	cat := e.cat.Load()

	matches := make([]Match, 0, len(res))
	for _, r := range res {
		entry, err := cat.Get(catalog.EntryID(r.ID))
		if err != nil {
			// Removed from the catalog after indexing; skip.
			continue
		}
		matches = append(matches, Match{ID: entry.ID, SMILES: entry.SMILES, Distance: r.Distance})
	}

	// Exact self-retrieval: the catalog lookup by canonical form backs the
	// ANN result, so an indexed query molecule always comes back first and
	// at exactly distance 0.
	if entry, ok := cat.GetBySMILES(canonical); ok && e.manager.Contains(length, entry.ID) {
		self := Match{ID: entry.ID, SMILES: entry.SMILES, Distance: 0}

		rest := matches[:0:len(matches)]
		for _, m := range matches {
			if m.ID != entry.ID {
				rest = append(rest, m)
			}
		}
		matches = append([]Match{self}, rest...)
	}

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// UpsertMolecule canonicalizes and embeds the molecule, stores it in the
// catalog, and adds it to the index of every supported length. Upserting an
// already known molecule is an idempotent no-op that returns the existing
// ID.
func (e *Engine) UpsertMolecule(ctx context.Context, raw string) (catalog.EntryID, error) {
	start := time.Now()
	id, created, err := e.upsertMolecule(ctx, raw)
	e.metrics.RecordUpsert(time.Since(start), err)
	e.logger.LogUpsert(ctx, uint64(id), created, err)
	return id, err
}

func (e *Engine) upsertMolecule(ctx context.Context, raw string) (catalog.EntryID, bool, error) {
	if e.closed.Load() {
		return 0, false, ErrClosed
	}

	canonical, err := smiles.Canonicalize(raw)
	if err != nil {
		return 0, false, err
	}

	cat := e.cat.Load()

	var (
		id      catalog.EntryID
		full    []float32
		created bool
	)
	if entry, ok := cat.GetBySMILES(canonical); ok {
		// Known molecule: reuse the stored embedding so re-upserts stay
		// cheap and still repair any missing index entries.
		id, full = entry.ID, entry.Vector
	} else {
		full, err = e.embedder.EmbedFull(ctx, canonical)
		if err != nil {
			return 0, false, err
		}
		id, created = cat.Upsert(canonical, full)
	}

	for _, length := range e.manager.lengths {
		if err := e.manager.Insert(ctx, length, id, full); err != nil {
			return id, created, err
		}
	}
	return id, created, nil
}

// RemoveMolecule deletes the entry from the catalog and from the index of
// every supported length. ErrNotFound when no such entry exists.
func (e *Engine) RemoveMolecule(ctx context.Context, id catalog.EntryID) error {
	start := time.Now()
	err := e.removeMolecule(ctx, id)
	e.metrics.RecordRemove(time.Since(start), err)
	e.logger.LogRemove(ctx, uint64(id), err)
	return err
}

func (e *Engine) removeMolecule(ctx context.Context, id catalog.EntryID) error {
	if e.closed.Load() {
		return ErrClosed
	}

	if err := e.cat.Load().Remove(id); err != nil {
		return translateError(err)
	}

	for _, length := range e.manager.lengths {
		if err := e.manager.Remove(ctx, length, id); err != nil {
			return err
		}
	}
	return nil
}

// RebuildAllIndexes reindexes every supported length from a full catalog
// pass, with bounded parallelism across lengths. Each length's new
// generation is swapped in atomically; searches keep working against the
// previous generation while its replacement builds.
func (e *Engine) RebuildAllIndexes(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}

	cat := e.cat.Load()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.buildConcurrency)

	for _, length := range e.manager.lengths {
		g.Go(func() error {
			start := time.Now()
			err := e.manager.Build(ctx, length, cat)
			e.metrics.RecordBuild(length, time.Since(start), err)
			e.logger.LogBuild(ctx, length, e.manager.Len(length), err)
			return err
		})
	}

	return g.Wait()
}

// SaveCatalog writes a catalog snapshot to the blob store.
func (e *Engine) SaveCatalog(ctx context.Context, bs blobstore.Store, name string) error {
	if e.closed.Load() {
		return ErrClosed
	}

	err := catalog.SaveSnapshot(ctx, e.cat.Load(), bs, name)
	e.logger.LogSnapshot(ctx, name, err)
	return err
}

// LoadCatalog replaces the catalog with a snapshot from the blob store and
// rebuilds every index from it.
func (e *Engine) LoadCatalog(ctx context.Context, bs blobstore.Store, name string) error {
	if e.closed.Load() {
		return ErrClosed
	}

	loaded, err := catalog.LoadSnapshot(ctx, bs, name)
	if err != nil {
		e.logger.LogSnapshot(ctx, name, err)
		return err
	}

	e.cat.Store(loaded)
	return e.RebuildAllIndexes(ctx)
}
