package gwsocket

import "sync"

// Lister supplies a snapshot of the sockets a Broadcast should fan
// writes out to. Session/user-list code implements this without
// gwsocket needing to depend on those packages.
type Lister interface {
	Sockets() []Socket
}

// ListerFunc adapts a plain function to Lister.
type ListerFunc func() []Socket

// Sockets implements Lister.
func (f ListerFunc) Sockets() []Socket { return f() }

// Broadcast is a logical Socket whose every write fans out to every
// member of a Lister's current snapshot. Per-instruction atomicity is
// preserved per underlying socket (each target's own Begin/End lock
// is honored) but ordering across distinct fan-out targets is not
// cross-synchronized, per spec.
type Broadcast struct {
	list     Lister
	finished func() bool

	// mu is held for the whole Begin..End span so concurrent emitters
	// on the same Broadcast serialize per instruction, mirroring the
	// per-connection lock a plain Conn holds.
	mu       sync.Mutex
	snapshot []Socket
}

// NewBroadcast creates a Broadcast fanning out to list's members.
// finished, when non-nil, is polled on every Begin; once it returns
// true, writes to the broadcast become silent no-ops.
func NewBroadcast(list Lister, finished func() bool) *Broadcast {
	return &Broadcast{list: list, finished: finished}
}

// Begin snapshots the current target list and begins an instruction
// on each target.
func (b *Broadcast) Begin() {
	b.mu.Lock()
	if b.finished != nil && b.finished() {
		b.snapshot = nil
		return
	}
	b.snapshot = b.list.Sockets()
	for _, s := range b.snapshot {
		s.Begin()
	}
}

// Write fans p out to every target captured at Begin.
func (b *Broadcast) Write(p []byte) (int, error) {
	for _, s := range b.snapshot {
		_, _ = s.Write(p)
	}
	return len(p), nil
}

// End closes out the instruction on every target.
func (b *Broadcast) End() {
	for _, s := range b.snapshot {
		s.End()
	}
	b.snapshot = nil
	b.mu.Unlock()
}

// Close is a no-op: a Broadcast does not own its targets' lifecycles.
func (b *Broadcast) Close() error { return nil }
