package surface

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/deskgate/pkg/codec"
	"github.com/helixml/deskgate/pkg/gwlog"
	"github.com/helixml/deskgate/pkg/gwmetrics"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/rectutil"
)

var surfaceSeq atomic.Uint64

// CapabilityQuery lets the surface ask whether every currently
// connected user supports a given image mimetype, without the
// surface package depending on the user/session packages.
type CapabilityQuery interface {
	AllSupport(mimetype string) bool
}

type alwaysUnsupported struct{}

func (alwaysUnsupported) AllSupport(string) bool { return false }

// Surface is the pixel backing of one layer: a default layer (id 0),
// a positive-indexed visible layer, or a negative-indexed off-screen
// buffer.
type Surface struct {
	mu sync.Mutex

	id  int
	buf *pixelBuffer
	heat *heatMap

	clip  *rectutil.Rect
	dirty rectutil.Rect
	dirtyRectOnly bool
	dirtyFill     *[3]byte
	queue updateQueue

	// Visible-layer properties (meaningless for buffers / the default layer).
	x, y, z  int
	parent   int
	opacity  int
	lossless bool
	touches  int

	realized      bool
	locationDirty bool
	opacityDirty  bool

	sock     gwsocket.Socket
	encoders *codec.Registry
	metrics  *gwmetrics.Recorder
	logger   gwlog.Logger
	caps     CapabilityQuery

	now         func() int64
	lag         func() int
	streamAlloc func() int

	seq uint64
}

// New creates a Surface of the given pixel dimensions, identified by
// id (0 = default layer, >0 = visible layer, <0 = off-screen buffer),
// broadcasting flushed instructions through sock.
func New(id, w, h int, sock gwsocket.Socket) *Surface {
	return &Surface{
		id:       id,
		buf:      newPixelBuffer(w, h),
		heat:     newHeatMap(w, h),
		opacity:  0xFF,
		sock:     sock,
		encoders: codec.NewRegistry(),
		logger:   gwlog.New(nil, "surface"),
		caps:     alwaysUnsupported{},
		now:         func() int64 { return time.Now().UnixMilli() },
		lag:         func() int { return 20 },
		streamAlloc: defaultStreamAlloc,
		seq:         surfaceSeq.Add(1),
	}
}

// ID returns this surface's layer/buffer index.
func (s *Surface) ID() int { return s.id }

// SetMetrics installs an optional metrics recorder.
func (s *Surface) SetMetrics(m *gwmetrics.Recorder) { s.mu.Lock(); s.metrics = m; s.mu.Unlock() }

// SetCapabilityQuery installs the callback used to decide per-format
// WebP/JPEG eligibility against currently connected users.
func (s *Surface) SetCapabilityQuery(q CapabilityQuery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q == nil {
		q = alwaysUnsupported{}
	}
	s.caps = q
}

// SetLagProvider installs the function used to read the session's
// current processing lag for the quality-adaptation formula.
func (s *Surface) SetLagProvider(f func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lag = f
}

// SetClock overrides the surface's timestamp source; used by tests.
func (s *Surface) SetClock(f func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = f
}

// Bounds returns the surface's pixel bounds.
func (s *Surface) Bounds() rectutil.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.bounds()
}

// Dirty returns the current dirty rectangle (zero value if none).
func (s *Surface) Dirty() rectutil.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot copies the surface's entire pixel buffer out in B,G,R,A
// byte order, for callers (the cursor's set_surface convenience
// wrapper) that need to adopt another surface's current pixels rather
// than its instruction stream.
func (s *Surface) Snapshot() (w, h, stride int, pix []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf.pix))
	copy(out, s.buf.pix)
	return s.buf.w, s.buf.h, s.buf.stride, out
}

// Clip returns the current clip rectangle and whether one is set.
func (s *Surface) Clip() (rectutil.Rect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == nil {
		return rectutil.Rect{}, false
	}
	return *s.clip, true
}

// effectiveClip returns clip ∩ bounds, or bounds if no clip is set.
// Caller must hold s.mu.
func (s *Surface) effectiveClip() rectutil.Rect {
	bounds := s.buf.bounds()
	if s.clip == nil {
		return bounds
	}
	return rectutil.Constrain(*s.clip, bounds)
}

// recordDirty folds a newly-changed region into the surface's dirty
// rect or defers it to the queue, per the combine heuristic. fill is
// non-nil only for an exact single-color opaque fill, letting a later
// flush re-describe the region as rect+cfill instead of re-encoding
// pixels; it is dropped the moment the dirty region stops being a
// single uniform color. Caller must hold s.mu.
func (s *Surface) recordDirty(changed rectutil.Rect, rectOnly bool, fill *[3]byte) {
	if changed.Empty() {
		return
	}
	if s.dirty.Empty() {
		s.dirty = changed
		s.dirtyRectOnly = rectOnly
		s.dirtyFill = fill
		return
	}
	if shouldCombine(s.dirty, changed, s.realized, rectOnly) {
		s.dirty = rectutil.Extend(s.dirty, changed)
		s.dirtyRectOnly = s.dirtyRectOnly && rectOnly
		s.dirtyFill = sameFill(s.dirtyFill, fill)
		return
	}
	if !s.queue.push(s.dirty, s.dirtyRectOnly, s.dirtyFill) {
		// Queue is at capacity: flush now (draining it and the current
		// dirty rect) rather than silently dropping this update.
		s.flushLocked()
	}
	s.dirty = changed
	s.dirtyRectOnly = rectOnly
	s.dirtyFill = fill
}

// sameFill returns a if both a and b are non-nil and describe the same
// color, nil otherwise.
func sameFill(a, b *[3]byte) *[3]byte {
	if a == nil || b == nil {
		return nil
	}
	if *a != *b {
		return nil
	}
	return a
}

// Draw composites src at (x,y), Porter-Duff "over" if src carries
// alpha, a straight copy otherwise.
func (s *Surface) Draw(x, y int, src *SourceImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip := s.effectiveClip()
	changed := s.buf.draw(x, y, src, clip)
	s.recordDirty(changed, false, nil)
	s.heat.touchRect(changed, s.now())
}

// Paint stencil-fills wherever mask's alpha is non-zero.
func (s *Surface) Paint(x, y int, mask *SourceImage, r, g, b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip := s.effectiveClip()
	changed := s.buf.paint(x, y, mask, r, g, b, clip)
	s.recordDirty(changed, false, nil)
	s.heat.touchRect(changed, s.now())
}

// Copy copies a w x h rectangle from src at (sx,sy) to this surface
// at (dx,dy), clipped to this surface's clip rect. A same-surface copy
// is just another pixel mutation: it joins the normal dirty-rect/queue
// machinery and is re-encoded as an image like any other draw. A
// cross-surface copy is cheap to describe on the wire as-is, so the
// destination's outstanding queue is flushed first (to preserve
// ordering) and a `copy` instruction is issued immediately instead of
// being folded into the image queue.
func (s *Surface) Copy(src *Surface, sx, sy, w, h, dx, dy int) {
	if src == s {
		s.mu.Lock()
		s.copyLocked(src, sx, sy, w, h, dx, dy)
		s.mu.Unlock()
		return
	}

	first, second := lockOrder(src, s)
	first.mu.Lock()
	second.mu.Lock()
	s.flushLocked()
	target, srcOrigin := s.applyCopyLocked(src, sx, sy, w, h, dx, dy)
	second.mu.Unlock()
	first.mu.Unlock()

	if target.Empty() {
		return
	}
	s.emitCopy(src.id, srcOrigin.X, srcOrigin.Y, target.W, target.H, target.X, target.Y)
}

func (s *Surface) copyLocked(src *Surface, sx, sy, w, h, dx, dy int) {
	clip := s.effectiveClip()
	target := rectutil.Constrain(rectutil.Rect{X: dx, Y: dy, W: w, H: h}, clip)
	if target.Empty() {
		return
	}
	copyRect(src.buf, s.buf, sx+(target.X-dx), sy+(target.Y-dy), target.W, target.H, target.X, target.Y)
	s.recordDirty(target, false, nil)
	s.heat.touchRect(target, s.now())
}

// applyCopyLocked mutates the destination pixel buffer for a
// cross-surface copy without touching the dirty-rect/queue machinery,
// returning the clipped destination rect and the corresponding source
// origin. Caller must hold both surfaces' locks.
func (s *Surface) applyCopyLocked(src *Surface, sx, sy, w, h, dx, dy int) (dst, srcOrigin rectutil.Rect) {
	clip := s.effectiveClip()
	target := rectutil.Constrain(rectutil.Rect{X: dx, Y: dy, W: w, H: h}, clip)
	if target.Empty() {
		return rectutil.Rect{}, rectutil.Rect{}
	}
	origin := rectutil.Rect{X: sx + (target.X - dx), Y: sy + (target.Y - dy)}
	copyRect(src.buf, s.buf, origin.X, origin.Y, target.W, target.H, target.X, target.Y)
	s.heat.touchRect(target, s.now())
	return target, origin
}

// lockOrder returns (a,b) sorted by creation sequence so two-surface
// ops always acquire locks in a consistent, deadlock-free order.
func lockOrder(a, b *Surface) (*Surface, *Surface) {
	if a.seq < b.seq {
		return a, b
	}
	return b, a
}

// Transfer applies a per-pixel transfer function from src to this
// surface, tightening the dirty region to the touched bounding box.
func (s *Surface) Transfer(src *Surface, sx, sy, w, h int, op protocol.TransferFunction, dx, dy int) {
	if src == s {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.transferLocked(src, sx, sy, w, h, op, dx, dy)
		return
	}
	first, second := lockOrder(src, s)
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	s.transferLocked(src, sx, sy, w, h, op, dx, dy)
}

func (s *Surface) transferLocked(src *Surface, sx, sy, w, h int, op protocol.TransferFunction, dx, dy int) {
	clip := s.effectiveClip()
	target := rectutil.Constrain(rectutil.Rect{X: dx, Y: dy, W: w, H: h}, clip)
	if target.Empty() {
		return
	}
	transferRect(src.buf, s.buf, sx+(target.X-dx), sy+(target.Y-dy), target.W, target.H, op, target.X, target.Y)
	s.recordDirty(target, false, nil)
	s.heat.touchRect(target, s.now())
}

// Set fills a w x h rectangle at (x,y) with an exact ARGB color. A
// fully-opaque fill is tracked as rect-only (cheap to re-describe as
// rect+cfill); anything with partial alpha is a full drawing update.
func (s *Surface) Set(x, y, w, h int, r, g, b, a byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip := s.effectiveClip()
	target := rectutil.Constrain(rectutil.Rect{X: x, Y: y, W: w, H: h}, clip)
	if target.Empty() {
		return
	}
	s.buf.fillRect(target, r, g, b, a)
	var fill *[3]byte
	if a == 0xFF {
		fill = &[3]byte{r, g, b}
	}
	s.recordDirty(target, a == 0xFF, fill)
	s.heat.touchRect(target, s.now())
}

// SetClip installs a clipping rectangle constraining subsequent drawing.
func (s *Surface) SetClip(x, y, w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rectutil.Constrain(rectutil.Rect{X: x, Y: y, W: w, H: h}, s.buf.bounds())
	s.clip = &r
}

// ResetClip removes any clipping rectangle.
func (s *Surface) ResetClip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clip = nil
}

// Resize reallocates the pixel buffer and heat map (heat history is
// discarded), copies the intersection of old content, and constrains
// the clip/dirty rects to the new bounds.
func (s *Surface) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.resize(w, h)
	s.heat = newHeatMap(w, h)

	bounds := s.buf.bounds()
	if s.clip != nil {
		c := rectutil.Constrain(*s.clip, bounds)
		s.clip = &c
	}
	s.dirty = rectutil.Constrain(s.dirty, bounds)
	// Queue entries outside the new bounds are simply dropped on next
	// flush by virtue of being constrained there; nothing to do here.
}

// SetRealized marks whether the remote side has allocated this layer.
func (s *Surface) SetRealized(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realized = v
}

// Realized reports whether the remote side has allocated this layer.
func (s *Surface) Realized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realized
}

// SetLocation updates position/z/parent for a visible layer and marks
// location-dirty so the next property flush emits `move`.
func (s *Surface) SetLocation(parent, x, y, z int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent, s.x, s.y, s.z = parent, x, y, z
	s.locationDirty = true
}

// SetOpacity sets the layer's opacity [0,255] and marks opacity-dirty.
func (s *Surface) SetOpacity(opacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opacity = opacity
	s.opacityDirty = true
}

// SetLossless toggles this surface's lossless-only override.
func (s *Surface) SetLossless(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lossless = v
}

// SetTouches sets the multi-touch support count.
func (s *Surface) SetTouches(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = n
}
