package main

import "github.com/gorilla/websocket"

// wsMessageReader adapts a websocket connection's message-oriented
// ReadMessage into io.Reader, so the same wire.Scanner used for raw
// TCP connections can also drive a WebSocket one: each inbound binary
// message carries one or more complete textual instructions, exactly
// as WSConn's Begin/Write/End frames one outbound message per flushed
// instruction batch.
type wsMessageReader struct {
	conn    *websocket.Conn
	pending []byte
}

func (r *wsMessageReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		r.pending = data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
