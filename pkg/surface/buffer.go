// Package surface implements the per-layer pixel buffer, dirty-rect
// tracking, bounded update queue, heat map, and flush/encode pipeline
// that together make up the compositor.
package surface

import (
	"image"

	"github.com/helixml/deskgate/pkg/rectutil"
)

// pixelBuffer is a 32-bit ARGB, premultiplied-alpha backing store.
// In-memory byte order is B, G, R, A per spec §6; stride is always
// 4*width.
type pixelBuffer struct {
	w, h   int
	stride int
	pix    []byte
}

func newPixelBuffer(w, h int) *pixelBuffer {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	stride := 4 * w
	return &pixelBuffer{w: w, h: h, stride: stride, pix: make([]byte, stride*h)}
}

func (b *pixelBuffer) offset(x, y int) int {
	return y*b.stride + x*4
}

func (b *pixelBuffer) at(x, y int) (bb, gg, rr, aa byte) {
	o := b.offset(x, y)
	return b.pix[o], b.pix[o+1], b.pix[o+2], b.pix[o+3]
}

func (b *pixelBuffer) set(x, y int, bb, gg, rr, aa byte) {
	o := b.offset(x, y)
	b.pix[o] = bb
	b.pix[o+1] = gg
	b.pix[o+2] = rr
	b.pix[o+3] = aa
}

// bounds returns the full-surface rectangle.
func (b *pixelBuffer) bounds() rectutil.Rect {
	return rectutil.Rect{X: 0, Y: 0, W: b.w, H: b.h}
}

// toRGBA builds a standard-library image.RGBA view of rect (which
// must already be constrained to bounds) for handoff to a
// codec.Encoder. image.RGBA uses R,G,B,A byte order, so channels are
// reordered from the buffer's B,G,R,A storage.
func (b *pixelBuffer) toRGBA(rect rectutil.Rect) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, rect.W, rect.H))
	for row := 0; row < rect.H; row++ {
		srcY := rect.Y + row
		for col := 0; col < rect.W; col++ {
			srcX := rect.X + col
			bb, gg, rr, aa := b.at(srcX, srcY)
			o := img.PixOffset(col, row)
			img.Pix[o] = rr
			img.Pix[o+1] = gg
			img.Pix[o+2] = bb
			img.Pix[o+3] = aa
		}
	}
	return img
}

// regionOpaque reports whether every pixel in rect has full alpha.
func (b *pixelBuffer) regionOpaque(rect rectutil.Rect) bool {
	for y := rect.Y; y < rect.Bottom(); y++ {
		for x := rect.X; x < rect.Right(); x++ {
			_, _, _, a := b.at(x, y)
			if a != 0xFF {
				return false
			}
		}
	}
	return true
}

// resize reallocates the buffer to w x h, copying the intersection of
// the old content into the new buffer at the origin.
func (b *pixelBuffer) resize(w, h int) {
	next := newPixelBuffer(w, h)
	copyW := min(b.w, w)
	copyH := min(b.h, h)
	for y := 0; y < copyH; y++ {
		srcOff := b.offset(0, y)
		dstOff := next.offset(0, y)
		copy(next.pix[dstOff:dstOff+copyW*4], b.pix[srcOff:srcOff+copyW*4])
	}
	*b = *next
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
