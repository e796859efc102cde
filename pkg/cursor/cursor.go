// Package cursor implements the session-wide shared remote cursor: a
// small layer-backed image buffer plus hotspot, position, button
// mask, and last-mover bookkeeping, broadcast to every connected user
// except the one currently driving it.
package cursor

import (
	"bytes"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/deskgate/pkg/codec"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/surface"
	"github.com/helixml/deskgate/pkg/wire"
)

// minBufferSide is the minimum backing-buffer allocation, expressed
// as side length (the minimum capacity is minBufferSide^2*4 bytes).
const minBufferSide = 64

// Broadcaster fans a cursor-change instruction out to connected users.
// A real session implements this over its active-user list; tests use
// a recording stub.
type Broadcaster interface {
	BroadcastExcept(userID string, instruction string)
	BroadcastAll(instruction string)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastExcept(string, string) {}
func (noopBroadcaster) BroadcastAll(string)            {}

// Cursor is the shared remote-cursor state. id is the buffer index
// this cursor's image is described under in `cursor`/`size`/`img`
// instructions (a reserved entry in the buffer layer namespace).
type Cursor struct {
	mu sync.Mutex

	id int

	hx, hy         int
	x, y           int
	mask           int
	lastMover      string
	lastMoverKnown bool
	ts             int64

	w, h, stride int
	cap          int // allocated byte capacity of pix, doubling growth
	pix          []byte

	encoders    *codec.Registry
	broadcaster Broadcaster
	now         func() int64
	streamAlloc func() int
}

var fallbackStreamSeq atomic.Int64

// defaultStreamAlloc is used until a session wires its real
// odd-indexed stream allocator in with SetStreamAllocator.
func defaultStreamAlloc() int {
	return int(fallbackStreamSeq.Add(1))
}

// New creates an empty Cursor (no image installed) identified by id in
// the buffer namespace.
func New(id int) *Cursor {
	return &Cursor{
		id:          id,
		encoders:    codec.NewRegistry(),
		broadcaster: noopBroadcaster{},
		now:         func() int64 { return time.Now().UnixMilli() },
		streamAlloc: defaultStreamAlloc,
	}
}

// SetStreamAllocator installs the function used to mint stream indices
// for the cursor's own img/blob/end sequences.
func (c *Cursor) SetStreamAllocator(f func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f == nil {
		f = defaultStreamAlloc
	}
	c.streamAlloc = f
}

// SetBroadcaster installs the fan-out target for cursor-change
// instructions.
func (c *Cursor) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b == nil {
		b = noopBroadcaster{}
	}
	c.broadcaster = b
}

// Update stores a new position and button mask and marks userID as
// the last mover, then fans a `mouse` instruction out to every OTHER
// user — the mover's own local cursor is already in the right place.
func (c *Cursor) Update(userID string, x, y, mask int) {
	c.mu.Lock()
	c.x, c.y, c.mask = x, y, mask
	c.lastMover = userID
	c.lastMoverKnown = true
	c.ts = c.now()
	broadcaster := c.broadcaster
	c.mu.Unlock()

	broadcaster.BroadcastExcept(userID, wire.Encode(string(protocol.OpMouse),
		wire.FormatInt(x), wire.FormatInt(y)))
}

// SetARGB installs a new cursor image, growing the backing buffer by
// doubling (minimum 64x64x4 bytes) rather than reallocating to the
// exact size every time, then broadcasts size -> img(PNG) -> cursor to
// every connected user.
func (c *Cursor) SetARGB(hx, hy, w, h, stride int, data []byte) {
	c.mu.Lock()
	c.hx, c.hy = hx, hy
	c.resizeLocked(w, h)
	for row := 0; row < h; row++ {
		srcOff := row * stride
		dstOff := row * c.stride
		n := w * 4
		if srcOff+n > len(data) {
			n = len(data) - srcOff
		}
		if n <= 0 {
			break
		}
		copy(c.pix[dstOff:dstOff+n], data[srcOff:srcOff+n])
	}
	img := c.snapshotLocked()
	broadcaster := c.broadcaster
	c.mu.Unlock()

	c.broadcastImage(broadcaster, img)
}

// SetSurface is a convenience wrapper over SetARGB that adopts src's
// current pixels as the cursor image.
func (c *Cursor) SetSurface(hx, hy int, src *surface.Surface) {
	w, h, stride, pix := src.Snapshot()
	c.SetARGB(hx, hy, w, h, stride, pix)
}

// resizeLocked grows c's backing buffer to at least w*h*4 bytes, only
// reallocating when the current capacity is insufficient, doubling
// from the previous capacity (or the 64x64x4 floor) each time it must
// grow. Caller must hold c.mu.
func (c *Cursor) resizeLocked(w, h int) {
	stride := w * 4
	need := stride * h
	if need > c.cap {
		cap := c.cap
		if cap < minBufferSide*minBufferSide*4 {
			cap = minBufferSide * minBufferSide * 4
		}
		for cap < need {
			cap *= 2
		}
		c.pix = make([]byte, cap)
		c.cap = cap
	} else {
		for i := range c.pix[:need] {
			c.pix[i] = 0
		}
	}
	c.w, c.h, c.stride = w, h, stride
}

func (c *Cursor) snapshotLocked() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.w, c.h))
	for y := 0; y < c.h; y++ {
		for x := 0; x < c.w; x++ {
			o := y*c.stride + x*4
			bb, gg, rr, aa := c.pix[o], c.pix[o+1], c.pix[o+2], c.pix[o+3]
			io := img.PixOffset(x, y)
			img.Pix[io], img.Pix[io+1], img.Pix[io+2], img.Pix[io+3] = rr, gg, bb, aa
		}
	}
	return img
}

func (c *Cursor) broadcastImage(b Broadcaster, img *image.RGBA) {
	enc, _ := c.encoders.Get(codec.FormatPNG)
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, 0); err != nil {
		return
	}

	c.mu.Lock()
	id, hx, hy, w, h := c.id, c.hx, c.hy, c.w, c.h
	alloc := c.streamAlloc
	c.mu.Unlock()

	streamID := alloc()
	b.BroadcastAll(wire.Encode(string(protocol.OpSize), wire.FormatInt(id), wire.FormatInt(w), wire.FormatInt(h)))
	b.BroadcastAll(wire.Encode(string(protocol.OpImg),
		wire.FormatInt(streamID), wire.FormatInt(int(protocol.ModeOver)), wire.FormatInt(id),
		enc.Mimetype(), wire.FormatInt(0), wire.FormatInt(0)))
	b.BroadcastAll(wire.Encode(string(protocol.OpBlob), wire.FormatInt(streamID), wire.EncodeBlob(buf.Bytes())))
	b.BroadcastAll(wire.Encode(string(protocol.OpEnd), wire.FormatInt(streamID)))
	b.BroadcastAll(wire.Encode(string(protocol.OpCursor),
		wire.FormatInt(hx), wire.FormatInt(hy), wire.FormatInt(id),
		wire.FormatInt(0), wire.FormatInt(0), wire.FormatInt(w), wire.FormatInt(h)))
}

// RemoveUser clears the last-mover if it was u, so a disconnecting
// user's cursor position doesn't linger as "owned" by a ghost.
func (c *Cursor) RemoveUser(u string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMoverKnown && c.lastMover == u {
		c.lastMoverKnown = false
		c.lastMover = ""
	}
}

// Dup replays the cursor's current state to a single newly-joined
// user's socket: position always, then the installed image if any.
func (c *Cursor) Dup(sock gwsocket.Socket) {
	c.mu.Lock()
	x, y, hx, hy, w, h := c.x, c.y, c.hx, c.hy, c.w, c.h
	id := c.id
	alloc := c.streamAlloc
	hasImage := w > 0 && h > 0
	var img *image.RGBA
	if hasImage {
		img = c.snapshotLocked()
	}
	c.mu.Unlock()

	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpMouse), wire.FormatInt(x), wire.FormatInt(y)))
	if !hasImage {
		return
	}

	enc, _ := c.encoders.Get(codec.FormatPNG)
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, 0); err != nil {
		return
	}
	streamID := alloc()
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpSize), wire.FormatInt(id), wire.FormatInt(w), wire.FormatInt(h)))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpImg),
		wire.FormatInt(streamID), wire.FormatInt(int(protocol.ModeOver)), wire.FormatInt(id),
		enc.Mimetype(), wire.FormatInt(0), wire.FormatInt(0)))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpBlob), wire.FormatInt(streamID), wire.EncodeBlob(buf.Bytes())))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpEnd), wire.FormatInt(streamID)))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpCursor),
		wire.FormatInt(hx), wire.FormatInt(hy), wire.FormatInt(id),
		wire.FormatInt(0), wire.FormatInt(0), wire.FormatInt(w), wire.FormatInt(h)))
}

// Position returns the cursor's current coordinates and button mask.
func (c *Cursor) Position() (x, y, mask int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y, c.mask
}

// LastMover returns the id of the user who last moved the cursor, and
// whether one is currently set.
func (c *Cursor) LastMover() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMover, c.lastMoverKnown
}
