package surface

import "github.com/helixml/deskgate/pkg/rectutil"

// heatCellSide is the side length, in pixels, of one heat-map cell.
const heatCellSide = 64

// heatHistory is the number of most-recent update timestamps each
// cell remembers.
const heatHistory = 5

type heatCell struct {
	ring [heatHistory]int64
	head int
	n    int // number of valid entries, caps at heatHistory
}

func (c *heatCell) touch(tsMillis int64) {
	c.ring[c.head] = tsMillis
	c.head = (c.head + 1) % heatHistory
	if c.n < heatHistory {
		c.n++
	}
}

// framerate returns this cell's instantaneous update rate in
// updates/s, or 0 if fewer than two samples have been recorded.
func (c *heatCell) framerate() float64 {
	if c.n < 2 {
		return 0
	}
	newest := c.ring[(c.head-1+heatHistory)%heatHistory]
	// oldest valid entry: if the ring isn't full yet, it's at index 0
	// of the logical fill order (head - n), else it's the slot the
	// next write will clobber (head itself).
	var oldestIdx int
	if c.n < heatHistory {
		oldestIdx = (c.head - c.n + heatHistory) % heatHistory
	} else {
		oldestIdx = c.head
	}
	oldest := c.ring[oldestIdx]
	dt := newest - oldest
	if dt <= 0 {
		return 0
	}
	return float64(heatHistory) * 1000.0 / float64(dt)
}

// heatMap is a 2-D grid of heatCells covering a surface's bounds.
type heatMap struct {
	w, h       int // surface pixel dimensions at construction
	cols, rows int
	cells      []heatCell
}

func newHeatMap(w, h int) *heatMap {
	cols := (w + heatCellSide - 1) / heatCellSide
	rows := (h + heatCellSide - 1) / heatCellSide
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &heatMap{w: w, h: h, cols: cols, rows: rows, cells: make([]heatCell, cols*rows)}
}

// touchRect records tsMillis against every cell rect intersects.
func (m *heatMap) touchRect(rect rectutil.Rect, tsMillis int64) {
	if rect.Empty() {
		return
	}
	c0 := clampIdx(rect.X/heatCellSide, m.cols)
	c1 := clampIdx((rect.Right()-1)/heatCellSide, m.cols)
	r0 := clampIdx(rect.Y/heatCellSide, m.rows)
	r1 := clampIdx((rect.Bottom()-1)/heatCellSide, m.rows)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			m.cells[r*m.cols+c].touch(tsMillis)
		}
	}
}

// regionFramerate returns the arithmetic mean framerate of every cell
// intersecting rect, or 0 if rect touches no cell with enough samples.
func (m *heatMap) regionFramerate(rect rectutil.Rect) float64 {
	if rect.Empty() {
		return 0
	}
	c0 := clampIdx(rect.X/heatCellSide, m.cols)
	c1 := clampIdx((rect.Right()-1)/heatCellSide, m.cols)
	r0 := clampIdx(rect.Y/heatCellSide, m.rows)
	r1 := clampIdx((rect.Bottom()-1)/heatCellSide, m.rows)

	var sum float64
	var count int
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			sum += m.cells[r*m.cols+c].framerate()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func clampIdx(v, max int) int {
	if v < 0 {
		return 0
	}
	if v >= max {
		return max - 1
	}
	return v
}
