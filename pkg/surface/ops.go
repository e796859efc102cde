package surface

import (
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/rectutil"
)

// SourceImage is an external pixel source handed to draw/paint, using
// the same B,G,R,A byte order and stride convention as the internal
// buffer. HasAlpha false means every pixel is treated as fully
// opaque and copied outright.
type SourceImage struct {
	W, H, Stride int
	Pix          []byte
	HasAlpha     bool
}

func (s *SourceImage) at(x, y int) (bb, gg, rr, aa byte) {
	o := y*s.Stride + x*4
	return s.Pix[o], s.Pix[o+1], s.Pix[o+2], s.Pix[o+3]
}

// draw composites src at (x,y) into b, clipped to clip, returning the
// tight bounding box of pixels that actually changed.
func (b *pixelBuffer) draw(x, y int, src *SourceImage, clip rectutil.Rect) rectutil.Rect {
	target := rectutil.Constrain(rectutil.Rect{X: x, Y: y, W: src.W, H: src.H}, clip)
	if target.Empty() {
		return rectutil.Rect{}
	}

	var changed rectutil.Rect
	first := true
	for dy := 0; dy < target.H; dy++ {
		dstY := target.Y + dy
		srcY := dstY - y
		for dx := 0; dx < target.W; dx++ {
			dstX := target.X + dx
			srcX := dstX - x

			sb, sg, sr, sa := src.at(srcX, srcY)
			var nb, ng, nr, na byte
			if !src.HasAlpha {
				nb, ng, nr, na = sb, sg, sr, 0xFF
			} else {
				db, dg, dr, da := b.at(dstX, dstY)
				nb = overChannel(sb, sa, db)
				ng = overChannel(sg, sa, dg)
				nr = overChannel(sr, sa, dr)
				na = overAlpha(sa, da)
			}

			ob, og, or_, oa := b.at(dstX, dstY)
			if ob == nb && og == ng && or_ == nr && oa == na {
				continue
			}
			b.set(dstX, dstY, nb, ng, nr, na)

			px := rectutil.Rect{X: dstX, Y: dstY, W: 1, H: 1}
			if first {
				changed = px
				first = false
			} else {
				changed = rectutil.Extend(changed, px)
			}
		}
	}
	return changed
}

// overChannel composes one premultiplied color channel with Porter-
// Duff "over": result = src + dst*(1-srcAlpha).
func overChannel(src, srcAlpha, dst byte) byte {
	inv := 255 - int(srcAlpha)
	v := int(src) + (int(dst)*inv)/255
	if v > 255 {
		v = 255
	}
	return byte(v)
}

func overAlpha(srcAlpha, dstAlpha byte) byte {
	inv := 255 - int(srcAlpha)
	v := int(srcAlpha) + (int(dstAlpha)*inv)/255
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// paint is a stencil fill: wherever mask's alpha channel is non-zero,
// the destination pixel is set to opaque (r,g,b).
func (b *pixelBuffer) paint(x, y int, mask *SourceImage, r, g, bl byte, clip rectutil.Rect) rectutil.Rect {
	target := rectutil.Constrain(rectutil.Rect{X: x, Y: y, W: mask.W, H: mask.H}, clip)
	if target.Empty() {
		return rectutil.Rect{}
	}
	var changed rectutil.Rect
	first := true
	for dy := 0; dy < target.H; dy++ {
		dstY := target.Y + dy
		srcY := dstY - y
		for dx := 0; dx < target.W; dx++ {
			dstX := target.X + dx
			srcX := dstX - x
			_, _, _, ma := mask.at(srcX, srcY)
			if ma == 0 {
				continue
			}
			b.set(dstX, dstY, bl, g, r, 0xFF)
			px := rectutil.Rect{X: dstX, Y: dstY, W: 1, H: 1}
			if first {
				changed = px
				first = false
			} else {
				changed = rectutil.Extend(changed, px)
			}
		}
	}
	return changed
}

// copyRect copies a w x h rectangle from src at (sx,sy) into dst at
// (dx,dy). When src == dst and the rectangles overlap, iteration
// direction is chosen so overlapping reads see pre-copy data: forward
// when dst is strictly above src, or on the same row and strictly left
// of it; backward otherwise.
func copyRect(src, dst *pixelBuffer, sx, sy, w, h, dx, dy int) {
	forward := true
	if dst == src {
		forward = dy < sy || (dy == sy && dx < sx)
	}

	rowRange := func() []int {
		rows := make([]int, h)
		for i := range rows {
			rows[i] = i
		}
		if !forward {
			for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
				rows[i], rows[j] = rows[j], rows[i]
			}
		}
		return rows
	}()

	for _, row := range rowRange {
		srcY := sy + row
		dstY := dy + row
		cols := make([]int, w)
		for i := range cols {
			cols[i] = i
		}
		if !forward {
			for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
				cols[i], cols[j] = cols[j], cols[i]
			}
		}
		for _, col := range cols {
			srcX := sx + col
			dstX := dx + col
			bb, gg, rr, aa := src.at(srcX, srcY)
			dst.set(dstX, dstY, bb, gg, rr, aa)
		}
	}
}

// applyTransfer applies one of protocol's 16 enumerated per-pixel
// operators. The destination alpha is preserved for every operator
// except SRC, which replaces all four channels.
func applyTransfer(op protocol.TransferFunction, s, d byte) byte {
	ns := ^s
	switch op {
	case protocol.TransferBlack:
		return 0x00
	case protocol.TransferWhite:
		return 0xFF
	case protocol.TransferSrc:
		return s
	case protocol.TransferDest:
		return d
	case protocol.TransferNSrc:
		return ns
	case protocol.TransferNDest:
		return ^d
	case protocol.TransferAnd:
		return s & d
	case protocol.TransferNAnd:
		return ^(s & d)
	case protocol.TransferOr:
		return s | d
	case protocol.TransferNOr:
		return ^(s | d)
	case protocol.TransferXor:
		return s ^ d
	case protocol.TransferXNor:
		return ^(s ^ d)
	case protocol.TransferNSrcAnd:
		return ns & d
	case protocol.TransferNSrcNAnd:
		return ^(ns & d)
	case protocol.TransferNSrcOr:
		return ns | d
	case protocol.TransferNSrcNOr:
		return ^(ns | d)
	}
	return d
}

func transferRect(src, dst *pixelBuffer, sx, sy, w, h int, op protocol.TransferFunction, dx, dy int) {
	for row := 0; row < h; row++ {
		srcY := sy + row
		dstY := dy + row
		for col := 0; col < w; col++ {
			srcX := sx + col
			dstX := dx + col
			sb, sg, sr, sa := src.at(srcX, srcY)
			db, dg, dr, da := dst.at(dstX, dstY)
			nb := applyTransfer(op, sb, db)
			ng := applyTransfer(op, sg, dg)
			nr := applyTransfer(op, sr, dr)
			na := da
			if op == protocol.TransferSrc {
				na = sa
			}
			dst.set(dstX, dstY, nb, ng, nr, na)
		}
	}
}

// fillRect fills target (already clipped) with an exact ARGB color.
func (b *pixelBuffer) fillRect(target rectutil.Rect, r, g, bl, a byte) {
	for y := target.Y; y < target.Bottom(); y++ {
		for x := target.X; x < target.Right(); x++ {
			b.set(x, y, bl, g, r, a)
		}
	}
}
