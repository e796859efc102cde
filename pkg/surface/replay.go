package surface

import (
	"bytes"

	"github.com/helixml/deskgate/pkg/codec"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/wire"
)

// ReplayStateTo serializes this surface's full current state — size,
// then (for positive-indexed visible layers only; never the default
// layer or an off-screen buffer) shade and move, then its
// entire pixel content as one lossless image — to sock, for a newly
// joining user that needs to reach parity with everyone else. Unlike
// a normal flush, this always sends the whole buffer regardless of
// what's dirty, and never touches the surface's own dirty/queue state.
func (s *Surface) ReplayStateTo(sock gwsocket.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bounds := s.buf.bounds()
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpSize),
		wire.FormatInt(s.id), wire.FormatInt(bounds.W), wire.FormatInt(bounds.H)))

	if s.id > 0 {
		gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpShade),
			wire.FormatInt(s.id), wire.FormatInt(s.opacity)))
		gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpMove),
			wire.FormatInt(s.id), wire.FormatInt(s.parent),
			wire.FormatInt(s.x), wire.FormatInt(s.y), wire.FormatInt(s.z)))
	}

	if bounds.Empty() {
		return
	}

	enc, _ := s.encoders.Get(codec.FormatPNG)
	img := s.buf.toRGBA(bounds)
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, 0); err != nil {
		s.logger.Error("replay encode failed", "err", err.Error())
		return
	}

	streamID := s.streamAlloc()
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpImg),
		wire.FormatInt(streamID), wire.FormatInt(int(protocol.ModeOver)), wire.FormatInt(s.id),
		enc.Mimetype(), wire.FormatInt(bounds.X), wire.FormatInt(bounds.Y)))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpBlob),
		wire.FormatInt(streamID), wire.EncodeBlob(buf.Bytes())))
	gwsocket.WriteInstruction(sock, wire.Encode(string(protocol.OpEnd), wire.FormatInt(streamID)))
}
