package idpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGapFreeBelowMinSize(t *testing.T) {
	p := New(4)
	require.Equal(t, 0, p.Alloc())
	require.Equal(t, 1, p.Alloc())
	p.Free(0)
	// Only 2 allocations made so far, below minSize(4): the cumulative
	// allocation count (not the live outstanding count) gates reuse, so
	// the next alloc still grows monotonically regardless of the free.
	assert.Equal(t, 2, p.Alloc())
}

func TestPoolReusesAfterGracePeriod(t *testing.T) {
	p := New(2)
	ids := []int{p.Alloc(), p.Alloc()}
	require.Equal(t, []int{0, 1}, ids)

	// Cumulative allocations (2) have now reached minSize(2): a freed
	// id becomes eligible for reuse immediately, regardless of how many
	// allocations remain outstanding.
	p.Free(0)
	assert.Equal(t, 0, p.Alloc())

	p.Free(1)
	p.Free(2)
	// FIFO order among frees: 1 was freed before 2.
	assert.Equal(t, 1, p.Alloc())
	assert.Equal(t, 2, p.Alloc())
}

func TestPoolAllocFreeRestoresState(t *testing.T) {
	p := New(1)
	// Push used past minSize so frees become eligible for reuse.
	a := p.Alloc()
	nextBefore, freeBefore := p.Size()

	b := p.Alloc()
	p.Free(b)

	nextAfter, freeAfter := p.Size()
	assert.Equal(t, nextBefore+1, nextAfter)
	assert.Equal(t, freeBefore+1, freeAfter)
	_ = a
}

func TestPoolConcurrentAllocUnique(t *testing.T) {
	p := New(8)
	n := 200
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() { results <- p.Alloc() }()
	}
	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		id := <-results
		assert.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
	}
}
