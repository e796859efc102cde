package session

import "github.com/helixml/deskgate/pkg/gwsocket"

// cursorBroadcaster adapts a Client's active-user list to
// cursor.Broadcaster: BroadcastAll fans out over every active user the
// same way Display's own flush does, while BroadcastExcept skips the
// single user who just moved the cursor, since that user's own mouse
// position doesn't need echoing back to itself.
type cursorBroadcaster struct {
	c *Client
}

func (b cursorBroadcaster) BroadcastAll(instruction string) {
	gwsocket.WriteInstruction(b.c.broadcastActive, instruction)
}

func (b cursorBroadcaster) BroadcastExcept(userID string, instruction string) {
	for _, sock := range b.c.activeSocketsExcept(userID) {
		gwsocket.WriteInstruction(sock, instruction)
	}
}

// activeSocketsExcept returns every active user's socket other than
// the one identified by userID.
func (c *Client) activeSocketsExcept(userID string) []gwsocket.Socket {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	var out []gwsocket.Socket
	for i := c.activeHead; i != noSlot; i = c.arena[i].next {
		u := c.arena[i].user
		if u.ID() == userID {
			continue
		}
		out = append(out, u.Socket())
	}
	return out
}
