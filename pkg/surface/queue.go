package surface

import "github.com/helixml/deskgate/pkg/rectutil"

// maxQueueSize is the bounded number of pending rectangles a surface
// will hold before it must flush immediately instead of deferring.
const maxQueueSize = 256

// queuedRect is one pending dirty region awaiting encode/emit. fill is
// non-nil only when the region is known to be a single uniform opaque
// color, letting flush re-describe it as rect+cfill.
type queuedRect struct {
	rect     rectutil.Rect
	rectOnly bool
	fill     *[3]byte
	flushed  bool
}

// updateQueue is the bounded FIFO of deferred dirty rectangles.
type updateQueue struct {
	items []queuedRect
}

func (q *updateQueue) full() bool { return len(q.items) >= maxQueueSize }

func (q *updateQueue) push(r rectutil.Rect, rectOnly bool, fill *[3]byte) bool {
	if q.full() {
		return false
	}
	q.items = append(q.items, queuedRect{rect: r, rectOnly: rectOnly, fill: fill})
	return true
}

func (q *updateQueue) len() int { return len(q.items) }

func (q *updateQueue) clear() { q.items = q.items[:0] }
