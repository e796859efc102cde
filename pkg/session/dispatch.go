package session

import (
	"time"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/streamtable"
	"github.com/helixml/deskgate/pkg/userctx"
	"github.com/helixml/deskgate/pkg/wire"
)

// Handler processes one inbound instruction from u.
type Handler func(u *userctx.User, args []string)

// handshakeTable maps the handshake-only opcodes to the populators
// that fill in a user's ConnInfo. An opcode absent from this table
// during handshake is ignored with a debug log, per spec.
var handshakeTable = map[string]Handler{
	string(protocol.OpSize):     handshakeSize,
	string(protocol.OpAudio):    handshakeAudio,
	string(protocol.OpVideo):    handshakeVideo,
	string(protocol.OpImage):    handshakeImage,
	string(protocol.OpTimezone): handshakeTimezone,
}

func handshakeSize(u *userctx.User, args []string) {
	if len(args) < 3 {
		return
	}
	info := u.Info()
	info.OptimalWidth = wire.AtoiOrZero(args[0])
	info.OptimalHeight = wire.AtoiOrZero(args[1])
	info.DPI = wire.AtoiOrZero(args[2])
	u.SetInfo(info)
}

func handshakeAudio(u *userctx.User, args []string) {
	info := u.Info()
	info.AudioMimetypes = args
	u.SetInfo(info)
}

func handshakeVideo(u *userctx.User, args []string) {
	info := u.Info()
	info.VideoMimetypes = args
	u.SetInfo(info)
}

func handshakeImage(u *userctx.User, args []string) {
	info := u.Info()
	info.ImageMimetypes = args
	u.SetInfo(info)
}

func handshakeTimezone(u *userctx.User, args []string) {
	if len(args) < 1 {
		return
	}
	info := u.Info()
	info.Timezone = args[0]
	u.SetInfo(info)
}

// Handshake dispatches one inbound handshake instruction ins from u
// through handshakeTable; the caller invokes it once per instruction
// until it considers negotiation complete (the args instruction that
// opens the handshake is sent separately by SendArgs). Unknown opcodes
// are logged and skipped, never fatal.
func (c *Client) Handshake(u *userctx.User, ins wire.Instruction) {
	h, ok := handshakeTable[ins.Opcode]
	if !ok {
		c.logger.Debug("unknown handshake opcode ignored", "opcode", ins.Opcode)
		return
	}
	h(u, ins.Args)
}

// SendArgs emits the args instruction that opens a handshake: the
// protocol version followed by the session's advertised argument
// names.
func (c *Client) SendArgs(u *userctx.User, argNames []string) {
	fields := append([]string{protocol.Latest.String()}, argNames...)
	gwsocket.WriteInstruction(u.Socket(), wire.Encode(string(protocol.OpArgs), fields...))
}

// SendReady emits ready(connection_id) to u, marking the end of its
// handshake: everything after this travels through the steady-state
// table.
func (c *Client) SendReady(u *userctx.User) {
	gwsocket.WriteInstruction(u.Socket(), wire.Encode(string(protocol.OpReady), c.ConnectionID))
}

// steadyTable maps steady-state opcodes accepted from users to their
// handlers. Stream-touching handlers validate the stream index
// themselves: argv via requireOpenStream, blob and end through the
// router's open/closed result; the others pass the index on unchecked.
var steadyTable = map[string]func(c *Client, u *userctx.User, args []string){
	string(protocol.OpSync): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 1 {
			return
		}
		ts := int64(wire.AtoiOrZero(args[0]))
		u.RecordSync(ts)
	},
	string(protocol.OpAck): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 3 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		message := args[1]
		status := protocol.Status(wire.AtoiOrZero(args[2]))
		router := streamtable.Router{User: u.Streams(), Session: c.Streams}
		router.Ack(idx, status, message)
	},
	string(protocol.OpBlob): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		buf := make([]byte, wire.DecodedLen(len(args[1])))
		n, err := wire.DecodeBlob(buf, args[1])
		if err != nil {
			return
		}
		router := streamtable.Router{User: u.Streams(), Session: c.Streams}
		open, handled := router.Blob(idx, buf[:n])
		if !open {
			sendAck(u, idx, "stream closed", protocol.StatusClientBadRequest)
			return
		}
		if !handled {
			sendAck(u, idx, "File transfer unsupported", protocol.StatusUnsupported)
		}
	},
	string(protocol.OpEnd): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 1 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		router := streamtable.Router{User: u.Streams(), Session: c.Streams}
		if !router.End(idx) {
			sendAck(u, idx, "stream closed", protocol.StatusClientBadRequest)
		}
	},
	string(protocol.OpGet): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		name := args[1]
		router := streamtable.Router{User: u.Objects(), Session: c.Objects}
		router.Get(idx, name)
	},
	string(protocol.OpPut): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 4 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		streamIdx := wire.AtoiOrZero(args[1])
		mimetype := args[2]
		name := args[3]
		router := streamtable.Router{User: u.Objects(), Session: c.Objects}
		if !router.Put(idx, name, mimetype) {
			sendAck(u, streamIdx, "Object write unsupported", protocol.StatusUnsupported)
		}
	},
	string(protocol.OpArgv): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 3 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		name := args[2]
		if !requireOpenStream(u, idx) {
			return
		}
		var value []byte
		u.Streams().SetStreamHandlers(idx, nil,
			func(data []byte) { value = append(value, data...) },
			func() { c.OnArgv(u, idx, name, string(value)) })
	},
	string(protocol.OpClipboard): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		mimetype := args[1]
		if c.hooks.OnClipboard != nil {
			c.hooks.OnClipboard(u, idx, mimetype)
			return
		}
		sendAck(u, idx, "Clipboard unsupported", protocol.StatusUnsupported)
	},
	string(protocol.OpFile): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 3 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		mimetype, filename := args[1], args[2]
		if c.hooks.OnFile != nil {
			c.hooks.OnFile(u, idx, mimetype, filename)
			return
		}
		sendAck(u, idx, "File transfer unsupported", protocol.StatusUnsupported)
	},
	string(protocol.OpPipe): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 3 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		mimetype, name := args[1], args[2]
		if c.hooks.OnPipe != nil {
			c.hooks.OnPipe(u, idx, mimetype, name)
			return
		}
		sendAck(u, idx, "Named pipes unsupported", protocol.StatusUnsupported)
	},
	string(protocol.OpMouse): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 3 {
			return
		}
		x := wire.AtoiOrZero(args[0])
		y := wire.AtoiOrZero(args[1])
		mask := wire.AtoiOrZero(args[2])
		c.Display.Cursor().Update(u.ID(), x, y, mask)
		if c.hooks.OnMouse != nil {
			c.hooks.OnMouse(u, x, y, mask)
		}
	},
	string(protocol.OpKey): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		if c.hooks.OnKey != nil {
			c.hooks.OnKey(u, wire.AtoiOrZero(args[0]), wire.AtoiOrZero(args[1]) != 0)
		}
	},
	string(protocol.OpSize): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		if c.hooks.OnResize != nil {
			c.hooks.OnResize(u, wire.AtoiOrZero(args[0]), wire.AtoiOrZero(args[1]))
		}
	},
	string(protocol.OpAudio): func(c *Client, u *userctx.User, args []string) {
		if len(args) < 2 {
			return
		}
		idx := wire.AtoiOrZero(args[0])
		if c.hooks.OnAudio != nil {
			c.hooks.OnAudio(u, idx, args[1])
			return
		}
		sendAck(u, idx, "Audio input unsupported", protocol.StatusUnsupported)
	},
	string(protocol.OpDisconnect): func(c *Client, u *userctx.User, args []string) {
		c.Leave(u)
	},
	string(protocol.OpNop): func(c *Client, u *userctx.User, args []string) {},
}

// sendAck writes ack(index, message, status) to u's individual socket,
// the shape every stream-touching handler above uses to report a
// closed stream or an unsupported capability without terminating the
// session (spec.md §7).
func sendAck(u *userctx.User, index int, message string, status protocol.Status) {
	gwsocket.WriteInstruction(u.Socket(), wire.Encode(string(protocol.OpAck),
		wire.FormatInt(index), message, wire.FormatInt(int(status))))
}

// Dispatch routes one steady-state instruction from u. Stream-table
// lookups that fail the cap/closed-sentinel check are the handler's
// own responsibility (see steadyTable).
func (c *Client) Dispatch(u *userctx.User, ins wire.Instruction) {
	h, ok := steadyTable[ins.Opcode]
	if !ok {
		c.logger.Debug("unknown steady-state opcode ignored", "opcode", ins.Opcode)
		return
	}
	h(c, u, ins.Args)
	if c.metrics != nil {
		c.metrics.ObserveDispatch(ins.Opcode)
	}
}

// requireOpenStream validates index against u's per-user stream table,
// writing ack(BAD_REQUEST) and returning false if the stream is closed
// or out of range.
func requireOpenStream(u *userctx.User, index int) bool {
	if u.Streams().StreamOpen(index) {
		return true
	}
	sendAck(u, index, "stream closed", protocol.StatusClientBadRequest)
	return false
}

// ForEachUser invokes fn for every active user under the active list's
// read lock. fn may only call read-safe per-user methods — it must
// never call back into Join/Leave or anything that mutates the active
// list, or it will deadlock against this RLock.
func (c *Client) ForEachUser(fn func(u *userctx.User)) {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	for i := c.activeHead; i != noSlot; i = c.arena[i].next {
		fn(c.arena[i].user)
	}
}

// ForEachUserForOwner is the one call site allowed to trigger a
// mutation indirectly from within the active-list read lock: instead
// of calling fn synchronously (which could deadlock if fn ends up
// calling Leave on the very user being visited), every user reference
// is queued and fn is invoked only after the lock is released.
func (c *Client) ForEachUserForOwner(fn func(u *userctx.User)) {
	var queued []*userctx.User
	c.activeMu.RLock()
	c.arenaMu.Lock()
	for i := c.activeHead; i != noSlot; i = c.arena[i].next {
		queued = append(queued, c.arena[i].user)
	}
	c.arenaMu.Unlock()
	c.activeMu.RUnlock()

	for _, u := range queued {
		fn(u)
	}
}

// EndFrame marks the end of a display update cycle: it records the
// send timestamp and emits sync(now, logicalFrames) to every active
// user.
func (c *Client) EndFrame(logicalFrames int) {
	now := time.Now().UnixMilli()
	c.lastSentTimestamp.Store(now)
	gwsocket.WriteInstruction(c.broadcastActive, wire.Encode(string(protocol.OpSync),
		wire.FormatInt(int(now)), wire.FormatInt(logicalFrames)))
}

// Abort flushes the display, emits a sanitized error instruction to
// every active user, and transitions the session to Stopping. detail
// is logged server-side only; the fixed text "Aborted. See logs." and
// status are all that reach the wire.
func (c *Client) Abort(status protocol.Status, detail string) {
	c.logger.Error("session aborted", "status", int(status), "detail", detail)
	c.Display.Flush()
	gwsocket.WriteInstruction(c.broadcastActive, wire.Encode(string(protocol.OpError),
		"Aborted. See logs.", wire.FormatInt(int(status))))
	c.Stop()
}

// pendingArgv tracks one in-flight required/argv round trip: the set
// of argument names still outstanding and the values collected so far.
type pendingArgv struct {
	remaining map[string]bool
	values    map[string]string
	done      func(values map[string]string)
}

// RequireArgs sends required(name...) to u and registers a one-shot
// argv handler: once every named argument has arrived via a completed
// argv stream, done is invoked with the full value set. This restores
// the original's authentication retry round trip (adapter asks for
// missing parameters, waits, retries).
func (c *Client) RequireArgs(u *userctx.User, done func(values map[string]string), names ...string) {
	pa := &pendingArgv{
		remaining: make(map[string]bool, len(names)),
		values:    make(map[string]string, len(names)),
		done:      done,
	}
	for _, n := range names {
		pa.remaining[n] = true
	}

	gwsocket.WriteInstruction(u.Socket(), wire.Encode(string(protocol.OpRequired), names...))

	idx := u.Streams().AllocStream(func(status protocol.Status, message string) {})
	if idx == -1 {
		c.logger.Warn("no stream slot available for argv retry", "user_id", u.ID())
		return
	}
	c.argvHandlers.set(u.ID(), idx, pa)
}

// OnArgv feeds one decoded argv value (name, value) arriving on stream
// index for user u into its pending RequireArgs round trip, if any.
// Once every named argument has been supplied, the completion callback
// fires and the round trip is forgotten.
func (c *Client) OnArgv(u *userctx.User, index int, name, value string) {
	pa := c.argvHandlers.get(u.ID(), index)
	if pa == nil {
		return
	}
	pa.values[name] = value
	delete(pa.remaining, name)
	if len(pa.remaining) > 0 {
		return
	}
	c.argvHandlers.clear(u.ID(), index)
	u.Streams().CloseStream(index)
	pa.done(pa.values)
}
