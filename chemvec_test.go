package chemvec

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemvec/chemvec/blobstore"
	"github.com/chemvec/chemvec/catalog"
	"github.com/chemvec/chemvec/embedding"
	"github.com/chemvec/chemvec/smiles"
)

// testLengths keeps engine tests fast; the full default set is exercised in
// the embedding package.
var testLengths = []int{2, 4, 8, 16, 32, 64, 128}

// hashProvider is a deterministic stand-in for the external model: every
// canonical string maps to a fixed, strictly positive 128-dim vector.
func hashProvider(ctx context.Context, canonical string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(canonical))
	state := h.Sum64()

	vec := make([]float32, 128)
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		vec[i] = float32(state%1000+1) / 1001
	}
	return vec, nil
}

func newEngine(t *testing.T, optFns ...Option) *Engine {
	t.Helper()
	opts := append([]Option{
		WithLengths(testLengths...),
		WithRandomSeed(42),
	}, optFns...)

	e, err := New(embedding.ProviderFunc(hashProvider), opts...)
	require.NoError(t, err)
	return e
}

func TestUpsertAndSelfRetrieval(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	molecules := []string{"CCO", "CCN", "CCC", "CC(C)O", "c1ccccc1", "CC(=O)O", "CCOC", "CO"}
	for _, m := range molecules {
		_, err := e.UpsertMolecule(ctx, m)
		require.NoError(t, err)
	}
	require.Equal(t, len(molecules), e.Len())

	// Every molecule retrieves itself first, at distance 0, at every
	// supported length.
	for _, m := range molecules {
		canonical, err := smiles.Canonicalize(m)
		require.NoError(t, err)

		for _, length := range e.Lengths() {
			matches, err := e.FindSimilar(ctx, m, length, 3)
			require.NoError(t, err, "molecule %q length %d", m, length)
			require.NotEmpty(t, matches)
			assert.Equal(t, canonical, matches[0].SMILES)
			assert.Equal(t, float32(0), matches[0].Distance)
		}
	}
}

func TestSelfRetrievalSurvivesRebuild(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	for _, m := range []string{"CCO", "CCN", "CCC"} {
		_, err := e.UpsertMolecule(ctx, m)
		require.NoError(t, err)
	}

	require.NoError(t, e.RebuildAllIndexes(ctx))

	for _, length := range e.Lengths() {
		matches, err := e.FindSimilar(ctx, "OCC", length, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "CCO", matches[0].SMILES)
		assert.Equal(t, float32(0), matches[0].Distance)
	}
}

func TestResultOrdering(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	molecules := []string{"CCO", "CCN", "CCC", "CC(C)O", "c1ccccc1", "CC(=O)O", "CCOC", "CO", "CN", "CCCCO"}
	for _, m := range molecules {
		_, err := e.UpsertMolecule(ctx, m)
		require.NoError(t, err)
	}

	matches, err := e.FindSimilar(ctx, "CCO", 64, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.LessOrEqual(t, len(matches), 5)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestIdempotentIngestion(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	id1, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)

	// Same molecule, different notation.
	id2, err := e.UpsertMolecule(ctx, "OCC")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	assert.Equal(t, 1, e.Len())
	for _, length := range e.Lengths() {
		assert.Equal(t, 1, e.manager.Len(length))
	}
}

func TestEthanolEthylamine(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)
	_, err = e.UpsertMolecule(ctx, "CCN")
	require.NoError(t, err)

	matches, err := e.FindSimilar(ctx, "CCO", 128, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "CCO", matches[0].SMILES)
	assert.Equal(t, float32(0), matches[0].Distance)
	assert.Equal(t, "CCN", matches[1].SMILES)
	assert.Greater(t, matches[1].Distance, float32(0))
}

func TestRemoveMolecule(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	idEthanol, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)
	_, err = e.UpsertMolecule(ctx, "CCN")
	require.NoError(t, err)
	_, err = e.UpsertMolecule(ctx, "CCC")
	require.NoError(t, err)

	require.NoError(t, e.RemoveMolecule(ctx, idEthanol))
	assert.Equal(t, 2, e.Len())

	// The removed molecule never appears, at any length and any k.
	for _, length := range e.Lengths() {
		matches, err := e.FindSimilar(ctx, "CCN", length, 10)
		require.NoError(t, err)
		for _, m := range matches {
			assert.NotEqual(t, idEthanol, m.ID)
			assert.NotEqual(t, "CCO", m.SMILES)
		}
	}

	assert.ErrorIs(t, e.RemoveMolecule(ctx, idEthanol), ErrNotFound)
}

func TestUpsertAfterRemovingAll(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// Empty the engine entirely, then ingest a new molecule: it must be
	// retrievable even though every graph node from the first generation
	// is tombstoned.
	var ids []catalog.EntryID
	for _, m := range []string{"CCO", "CCC", "CCCC"} {
		id, err := e.UpsertMolecule(ctx, m)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		require.NoError(t, e.RemoveMolecule(ctx, id))
	}
	require.Equal(t, 0, e.Len())

	_, err := e.UpsertMolecule(ctx, "CCN")
	require.NoError(t, err)

	for _, length := range e.Lengths() {
		matches, err := e.FindSimilar(ctx, "CCO", length, 2)
		require.NoError(t, err, "length %d", length)
		require.Len(t, matches, 1, "length %d", length)
		assert.Equal(t, "CCN", matches[0].SMILES)
	}
}

func TestFindSimilarErrors(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)

	t.Run("parse error", func(t *testing.T) {
		_, err := e.FindSimilar(ctx, "not-a-molecule", 64, 1)
		var parseErr *smiles.ParseError
		assert.ErrorAs(t, err, &parseErr)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := e.FindSimilar(ctx, "CCO", 64, 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("unsupported length", func(t *testing.T) {
		_, err := e.FindSimilar(ctx, "CCO", 100, 1)
		var lengthErr *embedding.ErrUnsupportedLength
		require.ErrorAs(t, err, &lengthErr)
		assert.Equal(t, 100, lengthErr.Length)
	})
}

func TestFindSimilarIndexUnavailable(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	// Nothing was ever inserted or built: no generation exists.
	_, err := e.FindSimilar(ctx, "CCO", 64, 1)
	var unavailable *ErrIndexUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 64, unavailable.Length)
}

func TestEmbeddingUnavailable(t *testing.T) {
	ctx := context.Background()

	failing := embedding.ProviderFunc(func(ctx context.Context, canonical string) ([]float32, error) {
		return nil, errors.New("connection refused")
	})
	e, err := New(failing, WithLengths(testLengths...))
	require.NoError(t, err)

	_, err = e.UpsertMolecule(ctx, "CCO")
	var unavailable *embedding.ErrUnavailable
	assert.ErrorAs(t, err, &unavailable)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)

	require.NoError(t, e.Close())

	_, err = e.UpsertMolecule(ctx, "CCN")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.FindSimilar(ctx, "CCO", 64, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.RemoveMolecule(ctx, 1), ErrClosed)
	assert.ErrorIs(t, e.RebuildAllIndexes(ctx), ErrClosed)
}

func TestSaveAndLoadCatalog(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemory()

	e := newEngine(t)
	for _, m := range []string{"CCO", "CCN", "CCC"} {
		_, err := e.UpsertMolecule(ctx, m)
		require.NoError(t, err)
	}
	require.NoError(t, e.SaveCatalog(ctx, bs, "catalog.snap"))

	restored := newEngine(t)
	require.NoError(t, restored.LoadCatalog(ctx, bs, "catalog.snap"))
	assert.Equal(t, 3, restored.Len())

	matches, err := restored.FindSimilar(ctx, "CCO", 128, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "CCO", matches[0].SMILES)
	assert.Equal(t, float32(0), matches[0].Distance)

	// IDs survive the round trip.
	entry, ok := restored.cat.Load().GetBySMILES("CCO")
	require.True(t, ok)
	orig, ok := e.cat.Load().GetBySMILES("CCO")
	require.True(t, ok)
	assert.Equal(t, orig.ID, entry.ID)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	e := newEngine(t, WithMetricsCollector(metrics))

	id, err := e.UpsertMolecule(ctx, "CCO")
	require.NoError(t, err)
	_, err = e.FindSimilar(ctx, "CCO", 64, 1)
	require.NoError(t, err)
	require.NoError(t, e.RemoveMolecule(ctx, id))
	require.NoError(t, e.RebuildAllIndexes(ctx))

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.UpsertCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.RemoveCount)
	assert.Equal(t, int64(len(testLengths)), stats.BuildCount)
	assert.Zero(t, stats.UpsertErrors)
	assert.Zero(t, stats.SearchErrors)
}

func TestConcurrentSearchDuringRebuild(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	for i := 0; i < 8; i++ {
		_, err := e.UpsertMolecule(ctx, fmt.Sprintf("C%sO", strings.Repeat("C", i)))
		require.NoError(t, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = e.RebuildAllIndexes(ctx)
		}
	}()

	for i := 0; i < 50; i++ {
		matches, err := e.FindSimilar(ctx, "CCO", 64, 3)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, "CCO", matches[0].SMILES)
	}
	<-done
}
