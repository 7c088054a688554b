package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemvec/chemvec/blobstore"
)

func populated(t *testing.T, n int) *Store {
	t.Helper()
	s := New()
	for i := 0; i < n; i++ {
		s.Upsert(fmt.Sprintf("mol-%d", i), []float32{float32(i), float32(i) * 0.5})
	}
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(fmt.Sprintf("compression_%d", c), func(t *testing.T) {
			ctx := context.Background()
			bs := blobstore.NewMemory()
			s := populated(t, 10)

			err := SaveSnapshot(ctx, s, bs, "catalog.snap", func(o *SnapshotOptions) {
				o.Compression = c
			})
			require.NoError(t, err)

			loaded, err := LoadSnapshot(ctx, bs, "catalog.snap")
			require.NoError(t, err)
			require.Equal(t, s.Len(), loaded.Len())

			for e := range s.All() {
				got, err := loaded.Get(e.ID)
				require.NoError(t, err)
				assert.Equal(t, e.SMILES, got.SMILES)
				assert.Equal(t, e.Vector, got.Vector)
			}
		})
	}
}

func TestSnapshotIDsResumeAfterLoad(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemory()
	s := populated(t, 3)

	require.NoError(t, SaveSnapshot(ctx, s, bs, "catalog.snap"))

	loaded, err := LoadSnapshot(ctx, bs, "catalog.snap")
	require.NoError(t, err)

	id, created := loaded.Upsert("mol-new", []float32{9, 9})
	assert.True(t, created)
	assert.Equal(t, EntryID(4), id)
}

func TestSnapshotEmptyStore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemory()

	require.NoError(t, SaveSnapshot(ctx, New(), bs, "catalog.snap"))

	loaded, err := LoadSnapshot(ctx, bs, "catalog.snap")
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoadSnapshotMissing(t *testing.T) {
	_, err := LoadSnapshot(context.Background(), blobstore.NewMemory(), "nope")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemory()
	s := populated(t, 5)
	require.NoError(t, SaveSnapshot(ctx, s, bs, "catalog.snap"))

	data, err := bs.Get(ctx, "catalog.snap")
	require.NoError(t, err)

	t.Run("bad magic", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[0] ^= 0xff
		require.NoError(t, bs.Put(ctx, "bad", corrupt))
		_, err := LoadSnapshot(ctx, bs, "bad")
		assert.ErrorContains(t, err, "bad magic")
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		corrupt := append([]byte(nil), data...)
		corrupt[len(corrupt)-1] ^= 0xff
		require.NoError(t, bs.Put(ctx, "bad", corrupt))
		_, err := LoadSnapshot(ctx, bs, "bad")
		assert.ErrorContains(t, err, "checksum mismatch")
	})

	t.Run("truncated", func(t *testing.T) {
		require.NoError(t, bs.Put(ctx, "bad", data[:10]))
		_, err := LoadSnapshot(ctx, bs, "bad")
		assert.Error(t, err)
	})
}
