package cursor

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/wire"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	all      []string
	excepted []string
	except   string
}

func (r *recordingBroadcaster) BroadcastAll(ins string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, ins)
}

func (r *recordingBroadcaster) BroadcastExcept(userID, ins string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.except = userID
	r.excepted = append(r.excepted, ins)
}

func decode(t *testing.T, s string) wire.Instruction {
	t.Helper()
	ins, err := wire.Decode(s)
	require.NoError(t, err)
	return ins
}

func TestUpdateBroadcastsMouseExceptMover(t *testing.T) {
	c := New(-1)
	b := &recordingBroadcaster{}
	c.SetBroadcaster(b)

	c.Update("user-a", 42, 7, 1)

	require.Len(t, b.excepted, 1)
	assert.Equal(t, "user-a", b.except)
	ins := decode(t, b.excepted[0])
	assert.Equal(t, "mouse", ins.Opcode)
	assert.Equal(t, []string{"42", "7"}, ins.Args)

	mover, ok := c.LastMover()
	assert.True(t, ok)
	assert.Equal(t, "user-a", mover)
}

func TestSetARGBBroadcastsSizeImgCursorToEveryone(t *testing.T) {
	c := New(-1)
	b := &recordingBroadcaster{}
	c.SetBroadcaster(b)

	_, _, _, _, _, pix := PointerSprite()
	c.SetARGB(0, 0, spriteSize, spriteSize, spriteStride, pix)

	require.Len(t, b.all, 5)
	assert.Equal(t, "size", decode(t, b.all[0]).Opcode)
	assert.Equal(t, "img", decode(t, b.all[1]).Opcode)
	assert.Equal(t, "blob", decode(t, b.all[2]).Opcode)
	assert.Equal(t, "end", decode(t, b.all[3]).Opcode)

	cursorIns := decode(t, b.all[4])
	assert.Equal(t, "cursor", cursorIns.Opcode)
	assert.Equal(t, []string{"0", "0"}, cursorIns.Args[:2], "hotspot")
	assert.Equal(t, "0", cursorIns.Args[3], "sx is 0, not a destination x position")
	assert.Equal(t, "0", cursorIns.Args[4], "sy is 0, not a destination y position")
}

func TestSetARGBThenDupReplaysMouseThenImageTriplet(t *testing.T) {
	c := New(7)
	c.Update("owner", 3, 4, 0)
	_, _, _, _, _, pix := DotSprite()
	c.SetARGB(4, 4, spriteSize, spriteSize, spriteStride, pix)

	sock := gwsocket.NewMemSocket()
	c.Dup(sock)

	sc := wire.NewScanner(bytes.NewReader(sock.Bytes()))
	var ops []string
	for {
		ins, err := sc.Next()
		if err != nil {
			break
		}
		ops = append(ops, ins.Opcode)
	}
	require.Equal(t, []string{"mouse", "size", "img", "blob", "end", "cursor"}, ops)
}

func TestRemoveUserClearsLastMoverOnlyIfMatch(t *testing.T) {
	c := New(-1)
	c.SetBroadcaster(&recordingBroadcaster{})
	c.Update("user-a", 0, 0, 0)

	c.RemoveUser("someone-else")
	_, ok := c.LastMover()
	assert.True(t, ok)

	c.RemoveUser("user-a")
	_, ok = c.LastMover()
	assert.False(t, ok)
}

func TestDupWithNoImageInstalledOnlyEmitsMouse(t *testing.T) {
	c := New(-1)
	c.Update("u", 5, 6, 0)

	sock := gwsocket.NewMemSocket()
	c.Dup(sock)

	sc := wire.NewScanner(bytes.NewReader(sock.Bytes()))
	ins, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "mouse", ins.Opcode)
	_, err = sc.Next()
	assert.Error(t, err)
}

func TestSetARGBGrowsBufferByDoublingNotExactFit(t *testing.T) {
	c := New(-1)
	c.SetBroadcaster(&recordingBroadcaster{})

	c.SetARGB(0, 0, 10, 10, 40, make([]byte, 400))
	firstCap := c.cap
	assert.Equal(t, minBufferSide*minBufferSide*4, firstCap, "first grow floors at the 64x64x4 minimum")

	c.SetARGB(0, 0, 100, 100, 400, make([]byte, 40000))
	assert.Greater(t, c.cap, firstCap)
	assert.Equal(t, 0, c.cap%firstCap, "growth proceeds by doubling from the previous capacity")
}
