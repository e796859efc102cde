package cursor

// Predefined cursor bitmaps, adapters may install without drawing their
// own. Each is a 32x32 premultiplied ARGB buffer in B,G,R,A byte order
// (stride 128), hand-drawn the way the teacher's cursor sprite set
// draws its arrow/I-beam/crosshair shapes: outline first, fill second.

const spriteSize = 32
const spriteStride = spriteSize * 4

var (
	spriteBody    = [3]byte{0xFF, 0xFF, 0xFF} // white
	spriteOutline = [3]byte{0x00, 0x00, 0x00} // black
)

func newSprite() []byte {
	return make([]byte, spriteStride*spriteSize)
}

func setPixel(buf []byte, x, y int, bgr [3]byte, a byte) {
	if x < 0 || y < 0 || x >= spriteSize || y >= spriteSize {
		return
	}
	o := y*spriteStride + x*4
	buf[o], buf[o+1], buf[o+2], buf[o+3] = bgr[0], bgr[1], bgr[2], a
}

func drawLine(buf []byte, x0, y0, x1, y1 int, bgr [3]byte) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	x, y := x0, y0
	for {
		setPixel(buf, x, y, bgr, 0xFF)
		if x == x1 && y == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// PointerSprite draws the standard arrow pointer: outline then fill,
// matching the frontend's default SVG arrow shape.
func PointerSprite() (hx, hy int, w, h, stride int, pix []byte) {
	buf := newSprite()
	drawLine(buf, 1, 1, 1, 18, spriteOutline)
	drawLine(buf, 1, 18, 5, 14, spriteOutline)
	drawLine(buf, 5, 14, 8, 20, spriteOutline)
	drawLine(buf, 8, 20, 11, 18, spriteOutline)
	drawLine(buf, 11, 18, 8, 12, spriteOutline)
	drawLine(buf, 8, 12, 14, 12, spriteOutline)
	drawLine(buf, 14, 12, 1, 1, spriteOutline)
	for y := 2; y < 18; y++ {
		var minX, maxX int
		switch {
		case y <= 12:
			minX, maxX = 2, min(y, 13)
		case y <= 14:
			minX, maxX = 2, 7
		default:
			minX, maxX = 2, 4
		}
		for x := minX; x < maxX; x++ {
			setPixel(buf, x, y, spriteBody, 0xFF)
		}
	}
	return 0, 0, spriteSize, spriteSize, spriteStride, buf
}

// DotSprite draws a small filled circle centered in the bitmap, its
// own hotspot.
func DotSprite() (hx, hy int, w, h, stride int, pix []byte) {
	buf := newSprite()
	cx, cy, r := spriteSize/2, spriteSize/2, 4
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				setPixel(buf, x, y, spriteBody, 0xFF)
			}
		}
	}
	drawLine(buf, cx-r, cy-r, cx+r, cy-r, spriteOutline)
	drawLine(buf, cx+r, cy-r, cx+r, cy+r, spriteOutline)
	drawLine(buf, cx+r, cy+r, cx-r, cy+r, spriteOutline)
	drawLine(buf, cx-r, cy+r, cx-r, cy-r, spriteOutline)
	return cx, cy, spriteSize, spriteSize, spriteStride, buf
}

// IBarSprite draws the text-entry I-beam, hotspot at its visual center.
func IBarSprite() (hx, hy int, w, h, stride int, pix []byte) {
	buf := newSprite()
	cx := spriteSize / 2
	drawLine(buf, cx-3, 4, cx+3, 4, spriteOutline)
	drawLine(buf, cx, 4, cx, 27, spriteOutline)
	drawLine(buf, cx-3, 27, cx+3, 27, spriteOutline)
	for y := 5; y < 27; y++ {
		setPixel(buf, cx, y, spriteBody, 0xFF)
	}
	return cx, spriteSize / 2, spriteSize, spriteSize, spriteStride, buf
}

// BlankSprite returns a fully-transparent 32x32 buffer, used to hide
// the remote cursor entirely.
func BlankSprite() (hx, hy int, w, h, stride int, pix []byte) {
	return 0, 0, spriteSize, spriteSize, spriteStride, newSprite()
}
