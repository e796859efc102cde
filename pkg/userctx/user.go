// Package userctx holds per-viewer state: identity, negotiated
// capabilities, per-user stream/object tables, and timing statistics
// used by the quality-adaptation formula.
package userctx

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/streamtable"
)

// idPrefix makes a user ID a 37-character string: a one-character
// class tag plus a canonical 36-character UUID, so a log line can tell
// a user ID apart from any other UUID-shaped identifier at a glance.
const idPrefix = "u"

// ConnInfo is the capability bundle negotiated during handshake.
type ConnInfo struct {
	OptimalWidth    int
	OptimalHeight   int
	DPI             int
	ImageMimetypes  []string
	AudioMimetypes  []string
	VideoMimetypes  []string
	Timezone        string
	ProtocolVersion string
}

// AllSupport reports whether mimetype appears in the negotiated image
// mimetype list, satisfying surface.CapabilityQuery for a single user.
func (c ConnInfo) AllSupport(mimetype string) bool {
	for _, m := range c.ImageMimetypes {
		if m == mimetype {
			return true
		}
	}
	return false
}

// Stats tracks the timing data the sync-handling rule in spec.md §4.7
// needs to compute processing lag.
type Stats struct {
	LastReceived     int64
	LastFrameDuration int64
	ProcessingLag    int64
	hasPrior         bool
}

// User is one connected viewer.
type User struct {
	mu sync.Mutex

	id    string
	owner bool
	sock  gwsocket.Socket

	info  ConnInfo
	stats Stats

	streams *streamtable.Table
	objects *streamtable.Table

	active bool
	now    func() int64
}

// New allocates a fresh user with a new 37-character ID and its own
// even-parity stream and object tables, writing to socket sock.
func New(sock gwsocket.Socket, owner bool) *User {
	return &User{
		id:      idPrefix + uuid.NewString(),
		owner:   owner,
		sock:    sock,
		streams: streamtable.New(streamtable.Even),
		objects: streamtable.New(streamtable.Even),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// ID returns the 37-character user identifier.
func (u *User) ID() string { return u.id }

// Owner reports whether this user is the session's distinguished owner.
func (u *User) Owner() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.owner
}

// SetOwner updates the owner flag (the session clears/sets this on
// join, leave, and explicit ownership transfer).
func (u *User) SetOwner(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.owner = v
}

// Socket returns the user's individual targeted socket.
func (u *User) Socket() gwsocket.Socket { return u.sock }

// Streams returns this user's per-user (even-indexed) stream table.
func (u *User) Streams() *streamtable.Table { return u.streams }

// Objects returns this user's per-user object table.
func (u *User) Objects() *streamtable.Table { return u.objects }

// Info returns a copy of the negotiated connection-info bundle.
func (u *User) Info() ConnInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.info
}

// SetInfo replaces the connection-info bundle, normally populated
// field-by-field as handshake instructions arrive.
func (u *User) SetInfo(info ConnInfo) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.info = info
}

// Active reports whether the user has been promoted from pending.
func (u *User) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// SetActive marks the user as promoted to the active list.
func (u *User) SetActive(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = v
}

// RecordSync computes frame_duration and processing_lag for an
// inbound sync(timestamp) per spec.md §4.7, updating the user's
// stats and returning the resulting lag in milliseconds.
func (u *User) RecordSync(timestamp int64) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	frameDuration := u.now() - timestamp
	if frameDuration < 0 {
		frameDuration = 0
	}

	var lag int64
	if u.stats.hasPrior {
		lag = frameDuration - u.stats.LastFrameDuration
		if lag < 0 {
			lag = 0
		}
	}

	u.stats.LastReceived = u.now()
	u.stats.LastFrameDuration = frameDuration
	u.stats.ProcessingLag = lag
	u.stats.hasPrior = true
	return lag
}

// Lag returns the most recently computed processing lag, satisfying
// surface's lag-provider hook.
func (u *User) Lag() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return int(u.stats.ProcessingLag)
}
