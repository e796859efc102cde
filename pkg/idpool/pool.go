// Package idpool provides a reusable small-integer allocator used for
// layer, buffer, and stream IDs across a session.
package idpool

import "sync"

// Pool hands out non-negative integers on a FIFO discipline: a fresh
// pool yields 0, 1, 2, … until it has been used at least MinSize
// times, at which point freed integers become eligible for reuse in
// the order they were freed. This keeps low-activity sessions'
// allocations dense and gap-free while bounding reuse latency once a
// session is active.
type Pool struct {
	mu      sync.Mutex
	minSize int
	next    int // monotonic count of allocations ever made; frees never decrement this
	used    int
	free    []int
}

// DefaultMinSize is the grace period (in allocations) before freed IDs
// become eligible for reuse.
const DefaultMinSize = 256

// New creates a Pool with the given minimum size before reuse kicks
// in. A minSize <= 0 is replaced with DefaultMinSize.
func New(minSize int) *Pool {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Pool{minSize: minSize}
}

// Alloc returns the next available integer.
func (p *Pool) Alloc() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next >= p.minSize && len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		p.used++
		return id
	}

	id := p.next
	p.next++
	p.used++
	return id
}

// Free returns id to the pool for eventual reuse.
func (p *Pool) Free(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, id)
	if p.used > 0 {
		p.used--
	}
}

// Size reports the cumulative number of fresh integers handed out
// (reuses of freed ids are not counted) and how many freed ids are
// waiting for reuse; exposed for tests of the "restores prior state"
// invariant.
func (p *Pool) Size() (next int, freeCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next, len(p.free)
}
