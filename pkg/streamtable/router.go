package streamtable

import "github.com/helixml/deskgate/pkg/protocol"

// Router dispatches an inbound ack to whichever of a user's even table
// or the session's shared odd table actually owns the index, per
// spec.md §4.6's ack-routing rule.
type Router struct {
	User    *Table
	Session *Table
}

// Ack routes by index's parity to the owning table only; the other
// table is never consulted.
func (r Router) Ack(index int, status protocol.Status, message string) bool {
	if index%2 == int(Even) {
		return r.User.Ack(index, status, message)
	}
	return r.Session.Ack(index, status, message)
}

// Blob routes an inbound blob chunk to whichever table owns index.
func (r Router) Blob(index int, data []byte) (open, handled bool) {
	if index%2 == int(Even) {
		return r.User.Blob(index, data)
	}
	return r.Session.Blob(index, data)
}

// End routes the end of a stream to whichever table owns index.
func (r Router) End(index int) bool {
	if index%2 == int(Even) {
		return r.User.End(index)
	}
	return r.Session.End(index)
}

// Get routes an inbound get(name) to whichever table owns index.
func (r Router) Get(index int, name string) bool {
	if index%2 == int(Even) {
		return r.User.Get(index, name)
	}
	return r.Session.Get(index, name)
}

// Put routes an inbound put(name, mimetype) to whichever table owns
// index.
func (r Router) Put(index int, name, mimetype string) bool {
	if index%2 == int(Even) {
		return r.User.Put(index, name, mimetype)
	}
	return r.Session.Put(index, name, mimetype)
}
