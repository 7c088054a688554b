package queue

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinHeapOrdering(t *testing.T) {
	pq := NewMin(8)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		pq.Push(Item{Node: uint64(i), Distance: rng.Float32()})
	}

	prev := float32(-1)
	for pq.Len() > 0 {
		item, ok := pq.Pop()
		require.True(t, ok)
		assert.GreaterOrEqual(t, item.Distance, prev)
		prev = item.Distance
	}

	_, ok := pq.Pop()
	assert.False(t, ok)
}

func TestMaxHeapOrdering(t *testing.T) {
	pq := NewMax(8)
	for _, d := range []float32{0.5, 0.1, 0.9, 0.3} {
		pq.Push(Item{Distance: d})
	}

	top, ok := pq.Top()
	require.True(t, ok)
	assert.Equal(t, float32(0.9), top.Distance)

	min, ok := pq.Min()
	require.True(t, ok)
	assert.Equal(t, float32(0.1), min.Distance)
}

func TestReset(t *testing.T) {
	pq := NewMin(4)
	pq.Push(Item{Node: 1, Distance: 1})
	pq.Push(Item{Node: 2, Distance: 2})
	pq.Reset()
	assert.Zero(t, pq.Len())

	_, ok := pq.Top()
	assert.False(t, ok)

	pq.Push(Item{Node: 3, Distance: 3})
	item, ok := pq.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(3), item.Node)
}
