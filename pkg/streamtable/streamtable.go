// Package streamtable implements the fixed-size stream and object slot
// tables a user or a session keeps for in-flight blob transfers:
// allocation partitioned into even (per-user) and odd (session-level)
// indices, a closed/unused sentinel per slot, and ack/get/put handler
// dispatch that falls back to a table-level default when a slot has
// none of its own.
package streamtable

import (
	"sync"

	"github.com/helixml/deskgate/pkg/protocol"
)

// DefaultCap is the typical fixed slot count per table (spec.md §4.6).
const DefaultCap = 64

// Parity selects which half of the index space a table allocates from.
type Parity int

const (
	// Even allocates per-user stream/object indices.
	Even Parity = 0
	// Odd allocates session-level stream/object indices.
	Odd Parity = 1
)

// AckHandler processes an inbound ack for one stream.
type AckHandler func(status protocol.Status, message string)

// BlobHandler processes one inbound chunk of binary data arriving on a
// stream.
type BlobHandler func(data []byte)

// EndHandler processes the end of a stream.
type EndHandler func()

// GetHandler processes an inbound get(name) for one object.
type GetHandler func(name string)

// PutHandler processes an inbound put(name, mimetype) for one object.
type PutHandler func(name, mimetype string)

type streamSlot struct {
	open   bool
	onAck  AckHandler
	onBlob BlobHandler
	onEnd  EndHandler
}

type objectSlot struct {
	open  bool
	onGet GetHandler
	onPut PutHandler
}

// Table is a fixed-size slot table for either streams or objects,
// allocating indices of one parity. next counts allocations made so
// far; once it reaches cap, further allocations return -1 (the
// "beyond the cap" null result).
type Table struct {
	mu      sync.Mutex
	parity  Parity
	cap     int
	next    int
	streams []streamSlot
	objects []objectSlot

	defaultAck  AckHandler
	defaultBlob BlobHandler
	defaultEnd  EndHandler
	defaultGet  GetHandler
	defaultPut  PutHandler
}

// New creates a Table of the given parity with DefaultCap slots.
func New(parity Parity) *Table {
	return NewWithCap(parity, DefaultCap)
}

// NewWithCap creates a Table of the given parity and slot count.
func NewWithCap(parity Parity, cap int) *Table {
	return &Table{
		parity:  parity,
		cap:     cap,
		streams: make([]streamSlot, cap),
		objects: make([]objectSlot, cap),
	}
}

// SetDefaultAckHandler installs the table-level fallback ack handler,
// used when a stream's own handler was never set.
func (t *Table) SetDefaultAckHandler(h AckHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultAck = h
}

// SetDefaultObjectHandlers installs the table-level fallback get/put
// handlers.
func (t *Table) SetDefaultObjectHandlers(get GetHandler, put PutHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultGet = get
	t.defaultPut = put
}

// SetDefaultBlobHandler installs the table-level fallback blob handler,
// used when a stream's own handler was never set.
func (t *Table) SetDefaultBlobHandler(h BlobHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultBlob = h
}

// SetDefaultEndHandler installs the table-level fallback end handler.
func (t *Table) SetDefaultEndHandler(h EndHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultEnd = h
}

// SetStreamHandlers attaches per-stream handlers to an already-open
// slot, leaving any handler passed as nil untouched. Returns false if
// index doesn't name an open stream in this table.
func (t *Table) SetStreamHandlers(index int, onAck AckHandler, onBlob BlobHandler, onEnd EndHandler) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.streams[slot].open {
		return false
	}
	if onAck != nil {
		t.streams[slot].onAck = onAck
	}
	if onBlob != nil {
		t.streams[slot].onBlob = onBlob
	}
	if onEnd != nil {
		t.streams[slot].onEnd = onEnd
	}
	return true
}

// AllocStream reserves the next stream index, or -1 if the table is
// full.
func (t *Table) AllocStream(onAck AckHandler) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next >= t.cap {
		return -1
	}
	slot := t.next
	t.next++
	t.streams[slot] = streamSlot{open: true, onAck: onAck}
	return slot*2 + int(t.parity)
}

// AllocObject reserves the next object index, or -1 if the table is
// full.
func (t *Table) AllocObject(onGet GetHandler, onPut PutHandler) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.next >= t.cap {
		return -1
	}
	slot := t.next
	t.next++
	t.objects[slot] = objectSlot{open: true, onGet: onGet, onPut: onPut}
	return slot*2 + int(t.parity)
}

// slotIndex converts a wire stream/object index back into the slot
// array position, validating parity and bounds. ok is false for an
// index of the wrong parity or out of bounds; whether the slot is open
// is left to the caller.
func (t *Table) slotIndex(index int) (slot int, ok bool) {
	if index < 0 || index%2 != int(t.parity) {
		return 0, false
	}
	slot = index / 2
	if slot >= t.cap {
		return 0, false
	}
	return slot, true
}

// CloseStream marks a stream slot closed and drops its ack handler. A
// closed slot reads exactly like one that was never allocated (both
// are simply not open); the table does not tell the two apart, and a
// closed slot is not handed out again.
func (t *Table) CloseStream(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slotIndex(index)
	if !ok {
		return
	}
	t.streams[slot].open = false
	t.streams[slot].onAck = nil
}

// CloseObject marks an object slot closed.
func (t *Table) CloseObject(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slotIndex(index)
	if !ok {
		return
	}
	t.objects[slot].open = false
	t.objects[slot].onGet = nil
	t.objects[slot].onPut = nil
}

// StreamOpen reports whether index currently names an open stream
// slot in this table (used by handlers to validate a stream index
// against the cap and the closed sentinel before acting on it).
func (t *Table) StreamOpen(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.slotIndex(index)
	return ok && t.streams[slot].open
}

// Ack routes an inbound ack to the stream's own handler if set, else
// the table-level default. Returns false if index doesn't name an open
// stream in this table at all (the caller should try the other
// parity's table, or fall back to BAD_REQUEST).
func (t *Table) Ack(index int, status protocol.Status, message string) bool {
	t.mu.Lock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.streams[slot].open {
		t.mu.Unlock()
		return false
	}
	handler := t.streams[slot].onAck
	fallback := t.defaultAck
	t.mu.Unlock()

	if handler != nil {
		handler(status, message)
	} else if fallback != nil {
		fallback(status, message)
	}
	return true
}

// Blob routes an inbound chunk of binary data to the stream's own
// handler if set, else the table-level default. open reports whether
// index names an open stream in this table at all; handled reports
// whether a handler (own or default) actually ran.
func (t *Table) Blob(index int, data []byte) (open, handled bool) {
	t.mu.Lock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.streams[slot].open {
		t.mu.Unlock()
		return false, false
	}
	handler := t.streams[slot].onBlob
	fallback := t.defaultBlob
	t.mu.Unlock()

	if handler != nil {
		handler(data)
		return true, true
	}
	if fallback != nil {
		fallback(data)
		return true, true
	}
	return true, false
}

// End routes the end of a stream to its own handler if set, else the
// table-level default, then closes the slot regardless. Returns false
// if index didn't name an open stream in this table at all.
func (t *Table) End(index int) bool {
	t.mu.Lock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.streams[slot].open {
		t.mu.Unlock()
		return false
	}
	handler := t.streams[slot].onEnd
	fallback := t.defaultEnd
	t.mu.Unlock()

	if handler != nil {
		handler()
	} else if fallback != nil {
		fallback()
	}
	t.CloseStream(index)
	return true
}

// Get routes an inbound get(name) to the named object's own handler if
// set, else the table-level default.
func (t *Table) Get(index int, name string) bool {
	t.mu.Lock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.objects[slot].open {
		t.mu.Unlock()
		return false
	}
	handler := t.objects[slot].onGet
	fallback := t.defaultGet
	t.mu.Unlock()

	if handler != nil {
		handler(name)
	} else if fallback != nil {
		fallback(name)
	}
	return true
}

// Put routes an inbound put(name, mimetype) to the named object's own
// handler if set, else the table-level default.
func (t *Table) Put(index int, name, mimetype string) bool {
	t.mu.Lock()
	slot, ok := t.slotIndex(index)
	if !ok || !t.objects[slot].open {
		t.mu.Unlock()
		return false
	}
	handler := t.objects[slot].onPut
	fallback := t.defaultPut
	t.mu.Unlock()

	if handler != nil {
		handler(name, mimetype)
	} else if fallback != nil {
		fallback(name, mimetype)
	}
	return true
}
