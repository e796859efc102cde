// Package gwsocket provides the broadcast socket abstraction: a
// logical write sink that fans every instruction out to a list of
// live per-user sockets as a single unit, with begin/end markers
// guaranteeing no two concurrent instruction emissions interleave
// their fields on the same underlying connection.
package gwsocket

import (
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// Socket is a single logical sink for wire instructions. Begin/End
// bracket one instruction's worth of writes so concurrent emitters on
// the same Socket never interleave fields; the lock is held for the
// whole Begin..End span.
type Socket interface {
	io.Writer
	Begin()
	End()
	Close() error
}

// Conn wraps a raw connection (TCP, unix socket, or anything else
// satisfying net.Conn) as a Socket.
type Conn struct {
	rwc net.Conn
	mu  sync.Mutex
}

// NewConn wraps c as a Socket.
func NewConn(c net.Conn) *Conn {
	return &Conn{rwc: c}
}

func (c *Conn) Begin() { c.mu.Lock() }
func (c *Conn) End()   { c.mu.Unlock() }

func (c *Conn) Write(p []byte) (int, error) {
	return c.rwc.Write(p)
}

func (c *Conn) Close() error {
	return c.rwc.Close()
}

// Reader exposes the underlying connection for the session read loop.
func (c *Conn) Reader() io.Reader { return c.rwc }

// WSConn wraps a gorilla websocket connection as a Socket. Writes
// accumulated between Begin/End are buffered and flushed as a single
// binary WebSocket message on End, matching the teacher's
// ws_stream.go framing discipline while keeping the wire grammar
// itself unchanged (the message payload is exactly the textual
// instruction bytes).
type WSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	buf  []byte
}

// NewWSConn wraps conn as a Socket.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (w *WSConn) Begin() {
	w.mu.Lock()
	w.buf = w.buf[:0]
}

func (w *WSConn) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *WSConn) End() {
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return
	}
	_ = w.conn.WriteMessage(websocket.BinaryMessage, w.buf)
}

func (w *WSConn) Close() error {
	return w.conn.Close()
}
