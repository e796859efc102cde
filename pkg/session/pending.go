package session

import (
	"time"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/userctx"
	"github.com/helixml/deskgate/pkg/wire"
)

// Join allocates an arena slot for u and appends it to the pending
// list, where the promotion loop will pick it up. If u is flagged
// owner, the owner pointer updates immediately. A non-owner join
// notifies the owner with msg(USER_JOINED) synchronously, as part of
// the join itself — state replay is what waits for the promotion
// loop, not the membership notification.
func (c *Client) Join(u *userctx.User, owner bool) {
	c.arenaMu.Lock()
	idx := c.allocSlotLocked(u)
	c.arenaMu.Unlock()

	c.pendingMu.Lock()
	c.linkLocked(&c.pendingHead, idx)
	c.pendingCount++
	c.pendingMu.Unlock()

	if owner {
		u.SetOwner(true)
		c.setOwner(u)
	} else if o := c.Owner(); o != nil {
		writeMsg(o, protocol.MsgUserJoined, u.ID())
	}
	if c.hooks.OnUserJoined != nil {
		c.hooks.OnUserJoined(u)
	}
	c.updateUserGauges()
}

// Leave unlinks u from whichever list currently holds it, decrements
// that list's count, clears the owner pointer if u was owner, notifies
// the owner, and runs the leave hook. Stream/object tables belong to u
// and are released by the caller discarding u; Client does not retain
// a reference to u after this returns.
func (c *Client) Leave(u *userctx.User) {
	idx, inActive := c.findLocked(u)
	if idx == noSlot {
		return
	}

	if inActive {
		c.activeMu.Lock()
		c.unlinkLocked(&c.activeHead, idx)
		c.activeCount--
		c.activeMu.Unlock()
	} else {
		c.pendingMu.Lock()
		c.unlinkLocked(&c.pendingHead, idx)
		c.pendingCount--
		c.pendingMu.Unlock()
	}

	c.arenaMu.Lock()
	c.arena[idx] = slot{}
	c.free = append(c.free, idx)
	c.arenaMu.Unlock()

	if c.Owner() == u {
		c.setOwner(nil)
	}
	if owner := c.Owner(); owner != nil && owner != u {
		writeMsg(owner, protocol.MsgUserLeft, u.ID())
	}
	if c.hooks.OnLeave != nil {
		c.hooks.OnLeave(u)
	}
	c.updateUserGauges()
}

// findLocked scans both lists for u's arena slot. Not lock-free, but
// leave/promotion frequency is low relative to steady-state dispatch.
func (c *Client) findLocked(u *userctx.User) (idx int, inActive bool) {
	c.activeMu.RLock()
	for i := c.activeHead; i != noSlot; i = c.nextOf(i) {
		if c.userAt(i) == u {
			c.activeMu.RUnlock()
			return i, true
		}
	}
	c.activeMu.RUnlock()

	c.pendingMu.RLock()
	defer c.pendingMu.RUnlock()
	for i := c.pendingHead; i != noSlot; i = c.nextOf(i) {
		if c.userAt(i) == u {
			return i, false
		}
	}
	return noSlot, false
}

func (c *Client) userAt(i int) *userctx.User {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	return c.arena[i].user
}

func (c *Client) nextOf(i int) int {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	return c.arena[i].next
}

// linkLocked prepends idx to the list whose head is *head. Caller
// holds the relevant list lock; linkLocked takes arenaMu itself, since
// it writes both idx's links and the former head's prev.
func (c *Client) linkLocked(head *int, idx int) {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	c.arena[idx].prev = noSlot
	c.arena[idx].next = *head
	if *head != noSlot {
		c.arena[*head].prev = idx
	}
	*head = idx
}

// unlinkLocked removes idx from the list whose head is *head. Caller
// holds the relevant list lock.
func (c *Client) unlinkLocked(head *int, idx int) {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	s := c.arena[idx]
	if s.prev != noSlot {
		c.arena[s.prev].next = s.next
	} else {
		*head = s.next
	}
	if s.next != noSlot {
		c.arena[s.next].prev = s.prev
	}
}

// RunPendingLoop starts the background promotion loop, waking every
// promotionInterval to drain the pending list and splice it onto the
// head of the active list. Stop() ends the loop.
func (c *Client) RunPendingLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.promotionInterval)
		defer t.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-t.C:
				c.promoteBatch()
			}
		}
	}()
}

// Wait blocks until the pending loop (and any other goroutines started
// by the session) have exited after Stop.
func (c *Client) Wait() { c.wg.Wait() }

// promoteBatch atomically drains the pending list. If a join hook is
// installed and fails, the whole batch stays pending rather than being
// promoted.
func (c *Client) promoteBatch() {
	c.pendingMu.Lock()
	head := c.pendingHead
	count := c.pendingCount
	if head == noSlot {
		c.pendingMu.Unlock()
		return
	}
	batch := c.drainLocked(head)
	c.pendingHead = noSlot
	c.pendingCount = 0
	c.pendingMu.Unlock()

	if c.hooks.OnJoin != nil {
		for _, u := range batch {
			if err := c.hooks.OnJoin(u); err != nil {
				c.restorePending(batch)
				c.logger.Warn("join hook failed, batch stays pending", "err", err.Error(), "batch_size", count)
				return
			}
		}
	}

	for _, u := range batch {
		c.Display.Dup(u.Socket())
		u.SetActive(true)
	}

	c.spliceIntoActive(batch)
	c.updateUserGauges()
}

// drainLocked walks a list starting at head, collecting its users and
// returning each visited slot to the free list. Caller holds the
// list's own lock; after this call head's former members hold no
// arena slot at all until re-allocated (e.g. by spliceIntoActive).
func (c *Client) drainLocked(head int) []*userctx.User {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()
	var out []*userctx.User
	for i := head; i != noSlot; {
		next := c.arena[i].next
		out = append(out, c.arena[i].user)
		c.arena[i] = slot{}
		c.free = append(c.free, i)
		i = next
	}
	return out
}

// restorePending re-links a batch that failed its join hook back onto
// the pending list so it's retried next tick.
func (c *Client) restorePending(batch []*userctx.User) {
	c.arenaMu.Lock()
	idxs := make([]int, len(batch))
	for i, u := range batch {
		idxs[i] = c.allocSlotLocked(u)
	}
	c.arenaMu.Unlock()

	c.pendingMu.Lock()
	for _, idx := range idxs {
		c.linkLocked(&c.pendingHead, idx)
	}
	c.pendingCount += len(idxs)
	c.pendingMu.Unlock()
}

// spliceIntoActive allocates fresh active-list slots for a just-
// promoted batch and prepends them to the active list.
func (c *Client) spliceIntoActive(batch []*userctx.User) {
	c.arenaMu.Lock()
	idxs := make([]int, len(batch))
	for i, u := range batch {
		idxs[i] = c.allocSlotLocked(u)
	}
	c.arenaMu.Unlock()

	c.activeMu.Lock()
	for _, idx := range idxs {
		c.linkLocked(&c.activeHead, idx)
	}
	c.activeCount += len(idxs)
	c.activeMu.Unlock()
}

// writeMsg writes a msg(code:int, *arg:str) instruction directly to
// one user's own socket, for owner-only join/leave notifications.
func writeMsg(u *userctx.User, code protocol.MsgCode, args ...string) {
	fields := append([]string{wire.FormatInt(int(code))}, args...)
	gwsocket.WriteInstruction(u.Socket(), wire.Encode(string(protocol.OpMsg), fields...))
}
