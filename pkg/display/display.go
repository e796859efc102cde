// Package display aggregates the default surface, the extra visible
// layers and off-screen buffers a session has allocated, and the
// shared cursor, behind one mutex.
package display

import (
	"sync"

	"github.com/helixml/deskgate/pkg/cursor"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/idpool"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/surface"
	"github.com/helixml/deskgate/pkg/wire"
)

const cursorLayerID = -1

// Display is a thin aggregator: alloc/free layers and buffers, flush
// the visible ones, replay state to a joining user, and toggle a
// lossless override that every current and future surface obeys.
type Display struct {
	mu sync.Mutex

	sock gwsocket.Socket

	layerPool  *idpool.Pool
	bufferPool *idpool.Pool

	defaultSurface *surface.Surface
	layers         []*surface.Surface // prepend-on-alloc, like a linked list's head
	buffers        []*surface.Surface

	cursor *cursor.Cursor

	configure func(*surface.Surface)

	lossless bool
}

// New creates a Display with a default surface of the given size,
// writing its own instructions to sock (the session's active-user
// broadcast socket).
func New(w, h int, sock gwsocket.Socket) *Display {
	d := &Display{
		sock:       sock,
		layerPool:  idpool.New(0),
		bufferPool: idpool.New(0),
		cursor:     cursor.New(cursorLayerID),
	}
	d.defaultSurface = surface.New(0, w, h, sock)
	d.defaultSurface.SetRealized(true)
	return d
}

// SetSurfaceConfigurer installs a hook applied to the default surface
// immediately and to every subsequently allocated layer or buffer;
// the owning session uses it to wire its stream allocator, capability
// query, and lag provider into each surface.
func (d *Display) SetSurfaceConfigurer(f func(*surface.Surface)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configure = f
	if f == nil {
		return
	}
	f(d.defaultSurface)
	for _, s := range d.layers {
		f(s)
	}
	for _, s := range d.buffers {
		f(s)
	}
}

// Cursor returns the display's shared cursor, for wiring a broadcaster
// or dispatching mouse input.
func (d *Display) Cursor() *cursor.Cursor {
	return d.cursor
}

// DefaultSurface returns the always-present base layer.
func (d *Display) DefaultSurface() *surface.Surface {
	return d.defaultSurface
}

// AllocLayer allocates the next positive layer index, creates a
// realized surface for it on the display's broadcast socket, and
// prepends it to the visible-layer list.
func (d *Display) AllocLayer(w, h int) *surface.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.layerPool.Alloc() + 1 // layer 0 is reserved for the default surface
	s := surface.New(id, w, h, d.sock)
	s.SetRealized(true)
	s.SetLossless(d.lossless)
	if d.configure != nil {
		d.configure(s)
	}
	d.layers = append([]*surface.Surface{s}, d.layers...)
	return s
}

// AllocBuffer does the symmetric thing with the buffer pool and a
// negative index; buffers are scratch and are never flushed.
func (d *Display) AllocBuffer(w, h int) *surface.Surface {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := -(d.bufferPool.Alloc() + 1)
	s := surface.New(id, w, h, d.sock)
	s.SetLossless(d.lossless)
	if d.configure != nil {
		d.configure(s)
	}
	d.buffers = append([]*surface.Surface{s}, d.buffers...)
	return s
}

// FreeLayer unlinks and discards the layer identified by id, emits
// dispose so the remote side releases it, and returns the index to
// the layer pool.
func (d *Display) FreeLayer(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.layers = unlink(d.layers, id)
	d.layerPool.Free(id - 1)
	gwsocket.WriteInstruction(d.sock, wire.Encode(string(protocol.OpDispose), wire.FormatInt(id)))
}

// FreeBuffer unlinks and discards the buffer identified by id,
// returning its index to the buffer pool.
func (d *Display) FreeBuffer(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers = unlink(d.buffers, id)
	d.bufferPool.Free(-id - 1)
	gwsocket.WriteInstruction(d.sock, wire.Encode(string(protocol.OpDispose), wire.FormatInt(id)))
}

func unlink(list []*surface.Surface, id int) []*surface.Surface {
	out := list[:0]
	for _, s := range list {
		if s.ID() != id {
			out = append(out, s)
		}
	}
	return out
}

// Layer looks up a currently-allocated visible layer by id.
func (d *Display) Layer(id int) (*surface.Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.layers {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Buffer looks up a currently-allocated off-screen buffer by id.
func (d *Display) Buffer(id int) (*surface.Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.buffers {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Flush flushes the default surface and every extra visible layer.
// Off-screen buffers are scratch and are never flushed.
func (d *Display) Flush() {
	d.mu.Lock()
	layers := append([]*surface.Surface(nil), d.layers...)
	d.mu.Unlock()

	d.defaultSurface.Flush()
	for _, s := range layers {
		s.Flush()
	}
}

// Dup serializes the display's current state to a joining user's
// socket in order: cursor, default surface, every visible layer, every
// off-screen buffer.
func (d *Display) Dup(sock gwsocket.Socket) {
	d.mu.Lock()
	layers := append([]*surface.Surface(nil), d.layers...)
	buffers := append([]*surface.Surface(nil), d.buffers...)
	d.mu.Unlock()

	d.cursor.Dup(sock)
	d.defaultSurface.ReplayStateTo(sock)
	for _, s := range layers {
		s.ReplayStateTo(sock)
	}
	for _, s := range buffers {
		s.ReplayStateTo(sock)
	}
}

// SetLossless toggles an override forcing every current and future
// surface into lossless-only encoding.
func (d *Display) SetLossless(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lossless = v
	d.defaultSurface.SetLossless(v)
	for _, s := range d.layers {
		s.SetLossless(v)
	}
	for _, s := range d.buffers {
		s.SetLossless(v)
	}
}
