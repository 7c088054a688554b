package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	ctx := context.Background()

	local, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	stores := map[string]Store{
		"local":  local,
		"memory": NewMemory(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "snapshots/a", []byte("alpha")))
			require.NoError(t, s.Put(ctx, "snapshots/b", []byte("beta")))
			require.NoError(t, s.Put(ctx, "other/c", []byte("gamma")))

			data, err := s.Get(ctx, "snapshots/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha"), data)

			// Overwrite replaces contents.
			require.NoError(t, s.Put(ctx, "snapshots/a", []byte("alpha2")))
			data, err = s.Get(ctx, "snapshots/a")
			require.NoError(t, err)
			assert.Equal(t, []byte("alpha2"), data)

			names, err := s.List(ctx, "snapshots/")
			require.NoError(t, err)
			assert.Equal(t, []string{"snapshots/a", "snapshots/b"}, names)

			require.NoError(t, s.Delete(ctx, "snapshots/a"))
			_, err = s.Get(ctx, "snapshots/a")
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting an absent blob is a no-op.
			assert.NoError(t, s.Delete(ctx, "snapshots/a"))
		})
	}
}
