package containers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	require.True(t, rq.IsEmpty())

	for i := 1; i <= 4; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	require.True(t, rq.IsFull())
	require.Error(t, rq.Enqueue(5))

	for i := 1; i <= 4; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err := rq.Dequeue()
	require.Error(t, err)
}

func TestRingQueueGrowPreservesOrder(t *testing.T) {
	rq := NewGrowableRingQueue[uint32](2)

	// Wrap the read index before growing.
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	v, err := rq.Dequeue()
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
	require.NoError(t, rq.Enqueue(3))

	// Queue is full again; this enqueue must grow.
	require.NoError(t, rq.Enqueue(4))

	for _, want := range []uint32{2, 3, 4} {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
}

func TestRingQueueClear(t *testing.T) {
	rq := NewGrowableRingQueue[string](2)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))
	rq.Clear()
	require.True(t, rq.IsEmpty())
	require.Equal(t, 0, rq.Len())
	require.NoError(t, rq.Enqueue("c"))
	v, err := rq.Peek()
	require.NoError(t, err)
	require.Equal(t, "c", v)
}
