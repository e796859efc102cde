package userctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/deskgate/pkg/gwsocket"
)

func TestNewUserHasA37CharacterID(t *testing.T) {
	u := New(gwsocket.NewMemSocket(), false)
	assert.Len(t, u.ID(), 37)
}

func TestOwnerFlagRoundTrips(t *testing.T) {
	u := New(gwsocket.NewMemSocket(), true)
	assert.True(t, u.Owner())
	u.SetOwner(false)
	assert.False(t, u.Owner())
}

func TestStreamsAreEvenParity(t *testing.T) {
	u := New(gwsocket.NewMemSocket(), false)
	idx := u.Streams().AllocStream(nil)
	assert.Equal(t, 0, idx%2)
}

func TestRecordSyncComputesLagOnlyAfterTwoSamples(t *testing.T) {
	u := New(gwsocket.NewMemSocket(), false)
	var tick int64
	u.now = func() int64 { tick += 100; return tick }

	lag1 := u.RecordSync(0)
	assert.Equal(t, int64(0), lag1, "no prior sample yet, lag is zero")

	lag2 := u.RecordSync(0)
	assert.GreaterOrEqual(t, lag2, int64(0))
}

func TestConnInfoAllSupportChecksImageMimetypes(t *testing.T) {
	info := ConnInfo{ImageMimetypes: []string{"image/webp", "image/png"}}
	assert.True(t, info.AllSupport("image/webp"))
	assert.False(t, info.AllSupport("image/jpeg"))
}

func TestSetInfoReplacesBundle(t *testing.T) {
	u := New(gwsocket.NewMemSocket(), false)
	u.SetInfo(ConnInfo{Timezone: "UTC"})
	require.Equal(t, "UTC", u.Info().Timezone)
}
