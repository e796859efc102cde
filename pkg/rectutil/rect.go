// Package rectutil implements the integer rectangle algebra used by
// the compositor: constrain, extend, intersection classification,
// grid alignment, and hole clip-and-split.
package rectutil

// Rect is an axis-aligned integer rectangle. Width/height <= 0 denote
// an empty rectangle.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether r covers no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Right returns the exclusive right edge (x + w).
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge (y + h).
func (r Rect) Bottom() int { return r.Y + r.H }

// Area returns w*h, or 0 for an empty rectangle.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Constrain replaces r with its intersection with max. Idempotent:
// Constrain(Constrain(r, max), max) == Constrain(r, max).
func Constrain(r, max Rect) Rect {
	if r.Empty() || max.Empty() {
		return Rect{}
	}
	x0 := maxInt(r.X, max.X)
	y0 := maxInt(r.Y, max.Y)
	x1 := minInt(r.Right(), max.Right())
	y1 := minInt(r.Bottom(), max.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Extend returns the smallest rectangle containing both a and b.
// Extend(r, r) == r. Commutative and associative.
func Extend(a, b Rect) Rect {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	x0 := minInt(a.X, b.X)
	y0 := minInt(a.Y, b.Y)
	x1 := maxInt(a.Right(), b.Right())
	y1 := maxInt(a.Bottom(), b.Bottom())
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Overlap is the result of Intersects.
type Overlap int

const (
	// NoOverlap means a and b share no pixels.
	NoOverlap Overlap = 0
	// PartialOverlap means a and b share some but not all of a's area.
	PartialOverlap Overlap = 1
	// FullyInside means a is entirely contained within b.
	FullyInside Overlap = 2
)

// Intersects classifies how a relates to b.
func Intersects(a, b Rect) Overlap {
	if a.Empty() || b.Empty() {
		return NoOverlap
	}
	inter := Constrain(a, b)
	if inter.Empty() {
		return NoOverlap
	}
	if inter == a {
		return FullyInside
	}
	return PartialOverlap
}

// ExpandToGrid shifts r up-and-left and grows it until both its
// origin and far corner land on an n-pixel grid, then constrains the
// result to max. Used to align lossy-codec block boundaries.
func ExpandToGrid(n int, r, max Rect) Rect {
	if r.Empty() || n <= 0 {
		return r
	}
	x0 := floorTo(r.X, n)
	y0 := floorTo(r.Y, n)
	x1 := ceilTo(r.Right(), n)
	y1 := ceilTo(r.Bottom(), n)
	expanded := Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
	return Constrain(expanded, max)
}

// ClipAndSplit extracts one non-overlapping piece of *r that lies
// outside hole into out, shrinking *r accordingly, and reports
// whether it made progress. Must be called iteratively until it
// returns false. Extraction order is top, right, bottom, left
// (counter-clockwise from top) — this order is load-bearing for
// partial-redraw correctness and must not be changed.
func ClipAndSplit(r *Rect, hole Rect, out *Rect) bool {
	if r.Empty() || hole.Empty() {
		return false
	}
	overlap := Constrain(*r, hole)
	if overlap.Empty() {
		return false
	}
	if overlap == *r {
		// Fully covered by the hole: nothing outside it remains.
		return false
	}

	cur := *r

	// Top strip: the part of r above the hole.
	if overlap.Y > cur.Y {
		*out = Rect{X: cur.X, Y: cur.Y, W: cur.W, H: overlap.Y - cur.Y}
		*r = Rect{X: cur.X, Y: overlap.Y, W: cur.W, H: cur.Bottom() - overlap.Y}
		return true
	}

	// Right strip: the part of r to the right of the hole.
	if overlap.Right() < cur.Right() {
		*out = Rect{X: overlap.Right(), Y: cur.Y, W: cur.Right() - overlap.Right(), H: cur.H}
		*r = Rect{X: cur.X, Y: cur.Y, W: overlap.Right() - cur.X, H: cur.H}
		return true
	}

	// Bottom strip: the part of r below the hole.
	if overlap.Bottom() < cur.Bottom() {
		*out = Rect{X: cur.X, Y: overlap.Bottom(), W: cur.W, H: cur.Bottom() - overlap.Bottom()}
		*r = Rect{X: cur.X, Y: cur.Y, W: cur.W, H: overlap.Bottom() - cur.Y}
		return true
	}

	// Left strip: the part of r to the left of the hole.
	if overlap.X > cur.X {
		*out = Rect{X: cur.X, Y: cur.Y, W: overlap.X - cur.X, H: cur.H}
		*r = Rect{X: overlap.X, Y: cur.Y, W: cur.Right() - overlap.X, H: cur.H}
		return true
	}

	return false
}

func floorTo(v, n int) int {
	if v >= 0 {
		return (v / n) * n
	}
	return -(((-v) + n - 1) / n) * n
}

func ceilTo(v, n int) int {
	if v <= 0 {
		return -((-v) / n) * n
	}
	return ((v + n - 1) / n) * n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
