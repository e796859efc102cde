package streamtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/deskgate/pkg/protocol"
)

func TestAllocStreamProducesEvenIndicesForUserTable(t *testing.T) {
	tbl := New(Even)
	a := tbl.AllocStream(nil)
	b := tbl.AllocStream(nil)
	assert.Equal(t, 0, a)
	assert.Equal(t, 2, b)
}

func TestAllocStreamProducesOddIndicesForSessionTable(t *testing.T) {
	tbl := New(Odd)
	a := tbl.AllocStream(nil)
	b := tbl.AllocStream(nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 3, b)
}

func TestAllocBeyondCapReturnsNull(t *testing.T) {
	tbl := NewWithCap(Even, 2)
	require.NotEqual(t, -1, tbl.AllocStream(nil))
	require.NotEqual(t, -1, tbl.AllocStream(nil))
	assert.Equal(t, -1, tbl.AllocStream(nil))
}

func TestAckPrefersSlotHandlerOverDefault(t *testing.T) {
	tbl := New(Even)
	var slotCalled, defaultCalled bool
	tbl.SetDefaultAckHandler(func(protocol.Status, string) { defaultCalled = true })
	idx := tbl.AllocStream(func(protocol.Status, string) { slotCalled = true })

	ok := tbl.Ack(idx, protocol.StatusSuccess, "")
	require.True(t, ok)
	assert.True(t, slotCalled)
	assert.False(t, defaultCalled)
}

func TestAckFallsBackToDefaultWhenSlotHasNoHandler(t *testing.T) {
	tbl := New(Even)
	var defaultCalled bool
	tbl.SetDefaultAckHandler(func(protocol.Status, string) { defaultCalled = true })
	idx := tbl.AllocStream(nil)

	ok := tbl.Ack(idx, protocol.StatusSuccess, "")
	require.True(t, ok)
	assert.True(t, defaultCalled)
}

func TestAckOnClosedOrWrongParityIndexFails(t *testing.T) {
	tbl := New(Even)
	idx := tbl.AllocStream(nil)
	tbl.CloseStream(idx)
	assert.False(t, tbl.Ack(idx, protocol.StatusSuccess, ""))
	assert.False(t, tbl.Ack(idx+1, protocol.StatusSuccess, ""), "odd index never belongs to an Even table")
}

func TestRouterDispatchesByParity(t *testing.T) {
	user := New(Even)
	session := New(Odd)
	r := Router{User: user, Session: session}

	var userGot, sessionGot bool
	userIdx := user.AllocStream(func(protocol.Status, string) { userGot = true })
	sessionIdx := session.AllocStream(func(protocol.Status, string) { sessionGot = true })

	require.True(t, r.Ack(userIdx, protocol.StatusSuccess, ""))
	require.True(t, r.Ack(sessionIdx, protocol.StatusSuccess, ""))
	assert.True(t, userGot)
	assert.True(t, sessionGot)
}

func TestBlobPrefersSlotHandlerOverDefault(t *testing.T) {
	tbl := New(Even)
	var slotData, defaultData []byte
	tbl.SetDefaultBlobHandler(func(data []byte) { defaultData = data })
	idx := tbl.AllocStream(nil)
	tbl.SetStreamHandlers(idx, nil, func(data []byte) { slotData = data }, nil)

	open, handled := tbl.Blob(idx, []byte("hello"))
	require.True(t, open)
	require.True(t, handled)
	assert.Equal(t, []byte("hello"), slotData)
	assert.Nil(t, defaultData)
}

func TestBlobFallsBackToDefaultThenReportsUnhandled(t *testing.T) {
	tbl := New(Even)
	idx := tbl.AllocStream(nil)

	open, handled := tbl.Blob(idx, []byte("x"))
	assert.True(t, open)
	assert.False(t, handled, "no slot handler and no default registered")
}

func TestBlobOnClosedStreamReportsNotOpen(t *testing.T) {
	tbl := New(Even)
	idx := tbl.AllocStream(nil)
	tbl.CloseStream(idx)

	open, handled := tbl.Blob(idx, []byte("x"))
	assert.False(t, open)
	assert.False(t, handled)
}

func TestEndInvokesHandlerThenClosesStream(t *testing.T) {
	tbl := New(Even)
	var ended bool
	idx := tbl.AllocStream(nil)
	tbl.SetStreamHandlers(idx, nil, nil, func() { ended = true })

	require.True(t, tbl.End(idx))
	assert.True(t, ended)
	assert.False(t, tbl.StreamOpen(idx), "End always closes the stream")
}

func TestRouterRoutesBlobAndEndByParity(t *testing.T) {
	user := New(Even)
	session := New(Odd)
	r := Router{User: user, Session: session}

	var userEnded, sessionEnded bool
	userIdx := user.AllocStream(nil)
	user.SetStreamHandlers(userIdx, nil, nil, func() { userEnded = true })
	sessionIdx := session.AllocStream(nil)
	session.SetStreamHandlers(sessionIdx, nil, nil, func() { sessionEnded = true })

	require.True(t, r.End(userIdx))
	require.True(t, r.End(sessionIdx))
	assert.True(t, userEnded)
	assert.True(t, sessionEnded)
}

func TestGetAndPutDispatchToObjectsOwnHandlerFirst(t *testing.T) {
	tbl := New(Even)
	var gotName, gotPutName, gotMime string
	idx := tbl.AllocObject(
		func(name string) { gotName = name },
		func(name, mime string) { gotPutName, gotMime = name, mime },
	)

	require.True(t, tbl.Get(idx, "clipboard"))
	assert.Equal(t, "clipboard", gotName)

	require.True(t, tbl.Put(idx, "screenshot.png", "image/png"))
	assert.Equal(t, "screenshot.png", gotPutName)
	assert.Equal(t, "image/png", gotMime)
}
