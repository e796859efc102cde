// Package session implements the Client: a server-side session shared
// by many connected viewers, its pending/active user arena, owner
// election, the pending-users promotion loop, and the opcode dispatch
// tables for handshake and steady-state instructions.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/deskgate/pkg/display"
	"github.com/helixml/deskgate/pkg/gwlog"
	"github.com/helixml/deskgate/pkg/gwmetrics"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/idpool"
	"github.com/helixml/deskgate/pkg/streamtable"
	"github.com/helixml/deskgate/pkg/surface"
	"github.com/helixml/deskgate/pkg/userctx"
)

const noSlot = -1

// slot is one arena entry: the user it holds plus its neighbors'
// indices within whichever list (pending or active) currently owns
// it. Using index-based links instead of user-held prev/next pointers
// removes the back-pointer cycle a doubly-linked list of *User values
// would otherwise create.
type slot struct {
	user       *userctx.User
	prev, next int
}

// Hooks are optional callbacks a session's embedder may install;
// omitted hooks are simply skipped.
type Hooks struct {
	// OnUserJoined runs synchronously inside Join, before the user has
	// been promoted — the same moment the owner's USER_JOINED
	// notification goes out.
	OnUserJoined func(u *userctx.User)
	// OnJoin runs per user at promotion time, the batch-level
	// join-pending step. Returning an error keeps the whole batch
	// pending for the next tick.
	OnJoin func(u *userctx.User) error
	// OnLeave runs after a user has been fully unlinked.
	OnLeave func(u *userctx.User)

	// OnClipboard, OnFile, and OnPipe forward the corresponding
	// adapter-owned instructions (spec.md §1's external-collaborator
	// boundary: clipboard sync, SFTP-style file transfer, named
	// pipes). An unset hook makes the opcode respond with
	// ack(UNSUPPORTED), matching the original's no-handler fallback.
	OnClipboard func(u *userctx.User, streamIndex int, mimetype string)
	OnFile      func(u *userctx.User, streamIndex int, mimetype, filename string)
	OnPipe      func(u *userctx.User, streamIndex int, mimetype, name string)

	// OnMouse and OnKey forward input events into the adapter driving
	// the remote session. The core still updates the shared cursor for
	// every mouse event before forwarding; key events without a hook
	// are dropped silently, as the original does for backends with no
	// keyboard.
	OnMouse func(u *userctx.User, x, y, mask int)
	OnKey   func(u *userctx.User, keysym int, pressed bool)

	// OnResize forwards a steady-state size request (the viewer asking
	// the remote display to change resolution). OnAudio forwards an
	// inbound audio stream announcement; unset, the opcode responds
	// with ack(UNSUPPORTED).
	OnResize func(u *userctx.User, w, h int)
	OnAudio  func(u *userctx.User, streamIndex int, mimetype string)
}

// Client is one server-side session.
type Client struct {
	ID           string
	ConnectionID string

	// args names the parameters advertised in the handshake's args
	// instruction, the session's args schema (spec.md §4.7).
	args []string

	logger  gwlog.Logger
	metrics *gwmetrics.Recorder
	hooks   Hooks

	running atomic.Bool

	lastSentTimestamp atomic.Int64

	ownerMu sync.Mutex
	owner   *userctx.User

	arenaMu sync.Mutex
	arena   []slot
	free    []int

	pendingMu    sync.RWMutex
	pendingHead  int
	pendingCount int

	activeMu    sync.RWMutex
	activeHead  int
	activeCount int

	broadcastActive  *gwsocket.Broadcast
	broadcastPending *gwsocket.Broadcast

	// streamPool mints session-level (odd-indexed) outbound stream
	// identifiers for the display's img/blob/end emission.
	streamPool *idpool.Pool
	Streams    *streamtable.Table // session-level, odd indices
	Objects    *streamtable.Table // session-level, odd indices

	Display *display.Display

	argvHandlers *argvRegistry

	promotionInterval time.Duration
	stopCh            chan struct{}
	wg                sync.WaitGroup
}

// New creates a Running session with a display of the given default
// surface size.
func New(id, connectionID string, w, h int, promotionInterval time.Duration) *Client {
	c := &Client{
		ID:                id,
		ConnectionID:      connectionID,
		logger:            gwlog.New(nil, "session").With("session_id", id),
		pendingHead:       noSlot,
		activeHead:        noSlot,
		streamPool:        idpool.New(0),
		Streams:           streamtable.New(streamtable.Odd),
		Objects:           streamtable.New(streamtable.Odd),
		argvHandlers:      newArgvRegistry(),
		promotionInterval: promotionInterval,
		stopCh:            make(chan struct{}),
	}
	c.running.Store(true)
	c.broadcastActive = gwsocket.NewBroadcast(gwsocket.ListerFunc(c.activeSockets), c.Finished)
	c.broadcastPending = gwsocket.NewBroadcast(gwsocket.ListerFunc(c.pendingSockets), c.Finished)
	c.Display = display.New(w, h, c.broadcastActive)
	c.Display.Cursor().SetBroadcaster(cursorBroadcaster{c: c})
	c.Display.Cursor().SetStreamAllocator(c.allocOutboundStream)
	c.Display.SetSurfaceConfigurer(c.configureSurface)
	return c
}

// configureSurface wires the session-side halves of a surface's
// injection points: stream allocation, audience capability queries,
// lag-driven quality, and metrics.
func (c *Client) configureSurface(s *surface.Surface) {
	s.SetStreamAllocator(c.allocOutboundStream)
	s.SetCapabilityQuery(c)
	s.SetLagProvider(c.maxLag)
	s.SetMetrics(c.metrics)
}

// allocOutboundStream mints the next session-level (odd) stream index
// for outbound img/blob/end sequences.
func (c *Client) allocOutboundStream() int {
	return c.streamPool.Alloc()*2 + 1
}

// AllSupport reports whether every currently active user advertises
// support for mimetype, satisfying surface.CapabilityQuery so the
// flush pipeline can gate WebP on the whole audience.
func (c *Client) AllSupport(mimetype string) bool {
	any := false
	all := true
	c.ForEachUser(func(u *userctx.User) {
		any = true
		if !u.Info().AllSupport(mimetype) {
			all = false
		}
	})
	return any && all
}

// updateUserGauges refreshes the active/pending user-count metrics
// after any list membership change.
func (c *Client) updateUserGauges() {
	if c.metrics == nil {
		return
	}
	c.activeMu.RLock()
	active := c.activeCount
	c.activeMu.RUnlock()
	c.pendingMu.RLock()
	pending := c.pendingCount
	c.pendingMu.RUnlock()
	c.metrics.SetUserCounts(active, pending)
}

// maxLag returns the worst processing lag across active users; the
// flush pipeline degrades lossy quality against the slowest viewer.
func (c *Client) maxLag() int {
	lag := 0
	c.ForEachUser(func(u *userctx.User) {
		if l := u.Lag(); l > lag {
			lag = l
		}
	})
	return lag
}

// SetHooks installs the embedder's optional join/leave callbacks.
func (c *Client) SetHooks(h Hooks) { c.hooks = h }

// SetArgs installs the argument names advertised during handshake.
func (c *Client) SetArgs(names []string) { c.args = names }

// Args returns the argument names advertised during handshake.
func (c *Client) Args() []string { return c.args }

// SetMetrics installs an optional metrics recorder and re-applies the
// surface configurer so already-allocated surfaces pick it up.
func (c *Client) SetMetrics(m *gwmetrics.Recorder) {
	c.metrics = m
	c.Display.SetSurfaceConfigurer(c.configureSurface)
}

// BroadcastActive returns the logical socket fanning writes to every
// active user.
func (c *Client) BroadcastActive() gwsocket.Socket { return c.broadcastActive }

// BroadcastPending returns the logical socket fanning writes to every
// pending user.
func (c *Client) BroadcastPending() gwsocket.Socket { return c.broadcastPending }

// Finished reports whether the session has stopped, satisfying
// gwsocket.Broadcast's finished predicate: writes to a finished
// session are silently dropped.
func (c *Client) Finished() bool { return !c.running.Load() }

// Stop transitions the session to Stopping. All subsequent instruction
// emission through its broadcast sockets becomes a no-op.
func (c *Client) Stop() {
	if c.running.CompareAndSwap(true, false) {
		close(c.stopCh)
	}
}

// Owner returns the session's distinguished active user, or nil.
func (c *Client) Owner() *userctx.User {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	return c.owner
}

func (c *Client) setOwner(u *userctx.User) {
	c.ownerMu.Lock()
	c.owner = u
	c.ownerMu.Unlock()
}

// allocSlotLocked returns an arena index for u, reusing a freed slot if one
// exists. Caller must hold arenaMu.
func (c *Client) allocSlotLocked(u *userctx.User) int {
	if n := len(c.free); n > 0 {
		idx := c.free[n-1]
		c.free = c.free[:n-1]
		c.arena[idx] = slot{user: u, prev: noSlot, next: noSlot}
		return idx
	}
	c.arena = append(c.arena, slot{user: u, prev: noSlot, next: noSlot})
	return len(c.arena) - 1
}

func (c *Client) activeSockets() []gwsocket.Socket {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return c.collectSocketsLocked(c.activeHead)
}

func (c *Client) pendingSockets() []gwsocket.Socket {
	c.pendingMu.RLock()
	defer c.pendingMu.RUnlock()
	return c.collectSocketsLocked(c.pendingHead)
}

// collectSocketsLocked walks a list starting at head, returning each
// member's socket. Caller must hold arenaMu or otherwise guarantee the
// arena isn't concurrently mutated for the visited range; since
// entries are only ever appended (never reordered in place) and list
// membership changes are themselves guarded by the list's own lock,
// reading user/next under just the list lock is safe.
func (c *Client) collectSocketsLocked(head int) []gwsocket.Socket {
	var out []gwsocket.Socket
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	for i := head; i != noSlot; i = c.arena[i].next {
		out = append(out, c.arena[i].user.Socket())
	}
	return out
}
