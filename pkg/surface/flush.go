package surface

import (
	"bytes"
	"sort"
	"sync/atomic"
	"time"

	"github.com/helixml/deskgate/pkg/codec"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/rectutil"
	"github.com/helixml/deskgate/pkg/wire"
)

// minLossyArea is the smallest dirty region, in pixels, worth paying
// the lossy-encode overhead for.
const minLossyArea = 4096

// minLossyFramerate is the region update rate, in updates/s, above
// which a lossy codec is considered instead of PNG.
const minLossyFramerate = 3.0

// lossyGridWebP / lossyGridJPEG are the block-alignment grids lossy
// encodes expand the dirty rect to before handoff.
const (
	lossyGridWebP = 8
	lossyGridJPEG = 16
)

var fallbackStreamSeq atomic.Int64

// defaultStreamAlloc is used until a session wires a real odd/even
// stream-table allocator in with SetStreamAllocator.
func defaultStreamAlloc() int {
	return int(fallbackStreamSeq.Add(1))
}

// SetStreamAllocator installs the function used to mint stream indices
// for outgoing img/blob/end sequences, normally the owning session's
// session-level (odd-indexed) stream table.
func (s *Surface) SetStreamAllocator(f func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		f = defaultStreamAlloc
	}
	s.streamAlloc = f
}

// Flush runs the full flush sequence: property changes are emitted
// first, then the current dirty rect joins the queue, the queue is
// sorted and combined in two passes, and every surviving entry is
// encoded and emitted.
func (s *Surface) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Surface) flushLocked() {
	s.flushPropertiesLocked()

	items := append([]queuedRect(nil), s.queue.items...)
	s.queue.clear()

	if !s.dirty.Empty() {
		items = append(items, queuedRect{rect: s.dirty, rectOnly: s.dirtyRectOnly, fill: s.dirtyFill})
		s.dirty = rectutil.Rect{}
		s.dirtyRectOnly = false
		s.dirtyFill = nil
	}
	if len(items) == 0 {
		return
	}

	// Entries that combined with a follower get one further combine
	// scan before encoding; everything surviving either pass is
	// emitted — a merge-group that finds no further partner still
	// reaches the wire.
	firstPass, secondPass := combinePass(items)
	finalUnmerged, finalMerged := combinePass(secondPass)

	for _, it := range firstPass {
		s.encodeAndEmit(it)
	}
	for _, it := range finalUnmerged {
		s.encodeAndEmit(it)
	}
	for _, it := range finalMerged {
		s.encodeAndEmit(it)
	}
}

// flushPropertiesLocked emits move/shade for a dirty visible-layer
// location or opacity. Caller must hold s.mu.
func (s *Surface) flushPropertiesLocked() {
	if s.locationDirty {
		gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpMove),
			wire.FormatInt(s.id), wire.FormatInt(s.parent),
			wire.FormatInt(s.x), wire.FormatInt(s.y), wire.FormatInt(s.z)))
		s.locationDirty = false
	}
	if s.opacityDirty {
		gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpShade),
			wire.FormatInt(s.id), wire.FormatInt(s.opacity)))
		s.opacityDirty = false
	}
}

// combinePass sorts items by y asc, x asc, width desc, height asc and
// scans for compatible followers to combine, per the flush-time
// combine rule (same predicate as recordDirty's, always realized=true
// since queued entries are by definition post-realization updates).
// It returns the surviving entries that were NOT touched by a combine
// and the surviving entries that WERE combined with at least one
// follower. Callers must emit BOTH groups eventually; the merged
// group merely earns one further combine scan first.
func combinePass(items []queuedRect) (unmerged, merged []queuedRect) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].rect, items[j].rect
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.W != b.W {
			return a.W > b.W
		}
		return a.H < b.H
	})

	for i := range items {
		if items[i].flushed {
			continue
		}
		acc := items[i]
		combinedAny := false
		for j := i + 1; j < len(items); j++ {
			if items[j].flushed {
				continue
			}
			if shouldCombine(acc.rect, items[j].rect, true, acc.rectOnly && items[j].rectOnly) {
				acc.rect = rectutil.Extend(acc.rect, items[j].rect)
				acc.rectOnly = acc.rectOnly && items[j].rectOnly
				acc.fill = sameFill(acc.fill, items[j].fill)
				items[j].flushed = true
				combinedAny = true
			}
		}
		if combinedAny {
			merged = append(merged, acc)
		} else {
			unmerged = append(unmerged, acc)
		}
	}
	return unmerged, merged
}

// encodeAndEmit dispatches one surviving queue entry to the wire: a
// pure rect-only uniform-color fill re-describes as rect+cfill with no
// image encode at all, everything else goes through the codec
// selection and encode pipeline.
func (s *Surface) encodeAndEmit(item queuedRect) {
	// Entries queued before a shrinking resize may hang past the new
	// bounds; constrain here so an empty leftover is dropped instead of
	// encoded.
	item.rect = rectutil.Constrain(item.rect, s.buf.bounds())
	if item.rect.Empty() {
		return
	}
	if item.rectOnly && item.fill != nil {
		s.emitRectFill(item.rect, protocol.ModeOver, *item.fill, 0xFF)
		return
	}
	s.emitImage(item.rect)
}

func (s *Surface) emitRectFill(r rectutil.Rect, mode protocol.CompositeMode, color [3]byte, alpha byte) {
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpRect),
		wire.FormatInt(s.id),
		wire.FormatInt(r.X), wire.FormatInt(r.Y), wire.FormatInt(r.W), wire.FormatInt(r.H)))
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpCFill),
		wire.FormatInt(int(mode)), wire.FormatInt(s.id),
		wire.FormatInt(int(color[0])), wire.FormatInt(int(color[1])), wire.FormatInt(int(color[2])),
		wire.FormatInt(int(alpha))))
	if s.metrics != nil {
		s.metrics.ObserveDispatch(string(protocol.OpRect))
	}
}

// emitCopy describes a completed cross-surface copy directly on the
// wire instead of folding it into the image queue.
func (s *Surface) emitCopy(srcLayer, sx, sy, w, h, dx, dy int) {
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpCopy),
		wire.FormatInt(srcLayer), wire.FormatInt(sx), wire.FormatInt(sy),
		wire.FormatInt(w), wire.FormatInt(h),
		wire.FormatInt(int(protocol.ModeSrc)),
		wire.FormatInt(s.id), wire.FormatInt(dx), wire.FormatInt(dy)))
	if s.metrics != nil {
		s.metrics.ObserveDispatch(string(protocol.OpCopy))
	}
}

// emitImage encodes r's pixels and sends img/blob/end. Format
// selection follows the region's observed framerate and opacity: WebP
// when every connected user supports it and the region is both large
// and hot, JPEG when the region is opaque, large, and hot, PNG
// otherwise. A PNG-optimality estimate overrides a lossy pick that
// would not actually save bytes. A non-opaque PNG is preceded by a
// rect+cfill(ROUT,0) to clear the destination before compositing.
func (s *Surface) emitImage(r rectutil.Rect) {
	opaque := s.buf.regionOpaque(r)
	area := r.Area()
	fr := s.heat.regionFramerate(r)
	pngOptimal := pngOptimalityEstimate(s.buf, r)
	bounds := s.buf.bounds()

	format := codec.FormatPNG
	switch {
	case !s.lossless && s.caps.AllSupport(string(codec.FormatWebP)) && area >= minLossyArea && fr >= minLossyFramerate && pngOptimal < 0:
		format = codec.FormatWebP
		r = rectutil.ExpandToGrid(lossyGridWebP, r, bounds)
	case !s.lossless && opaque && area >= minLossyArea && fr >= minLossyFramerate && pngOptimal < 0:
		format = codec.FormatJPEG
		r = rectutil.ExpandToGrid(lossyGridJPEG, r, bounds)
	}

	enc, ok := s.encoders.Get(format)
	if !ok {
		format = codec.FormatPNG
		enc, _ = s.encoders.Get(format)
	}
	if _, unavail := enc.(codec.Unavailable); unavail {
		format = codec.FormatPNG
		enc, _ = s.encoders.Get(format)
	}

	if format == codec.FormatPNG && !opaque {
		s.emitRectFill(r, protocol.ModeROut, [3]byte{0, 0, 0}, 0)
	}

	quality := qualityForLag(s.lag())

	start := time.Now()
	img := s.buf.toRGBA(r)
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, quality); err != nil {
		s.logger.Error("encode failed", "format", string(format), "err", err.Error())
		return
	}

	streamID := s.streamAlloc()
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpImg),
		wire.FormatInt(streamID), wire.FormatInt(int(protocol.ModeOver)), wire.FormatInt(s.id),
		enc.Mimetype(), wire.FormatInt(r.X), wire.FormatInt(r.Y)))
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpBlob),
		wire.FormatInt(streamID), wire.EncodeBlob(buf.Bytes())))
	gwsocket.WriteInstruction(s.sock, wire.Encode(string(protocol.OpEnd), wire.FormatInt(streamID)))

	if s.metrics != nil {
		s.metrics.ObserveFlush(string(format), buf.Len(), time.Since(start))
		s.metrics.ObserveDispatch(string(protocol.OpImg))
	}
}

// qualityForLag maps processing lag (ms over the 20ms baseline) to a
// lossy-codec quality setting, trading fidelity for throughput as the
// session falls behind.
func qualityForLag(lagMS int) int {
	q := 90 - (lagMS - 20)
	if q < 30 {
		return 30
	}
	if q > 90 {
		return 90
	}
	return q
}

// pngOptimalityEstimate scores r for how well PNG's lossless
// prediction+deflate pipeline will compress it: 256 * num_same /
// num_different - 1024, where same/different count horizontally
// adjacent pixel pairs masked to RGB. Negative means PNG is expected
// to do worse than a lossy codec; non-negative means the region is
// flat/graphical enough that PNG is likely already near-optimal and a
// lossy re-encode isn't worth it.
func pngOptimalityEstimate(b *pixelBuffer, r rectutil.Rect) int {
	if r.W < 2 || r.H == 0 {
		return 0
	}
	same := 0
	different := 1
	for y := r.Y; y < r.Bottom(); y++ {
		for x := r.X; x < r.Right()-1; x++ {
			b1, g1, r1, _ := b.at(x, y)
			b2, g2, r2, _ := b.at(x+1, y)
			if b1 == b2 && g1 == g2 && r1 == r2 {
				same++
			} else {
				different++
			}
		}
	}
	return (256*same)/different - 1024
}
