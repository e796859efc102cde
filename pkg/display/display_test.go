package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/wire"
)

func decodeOps(t *testing.T, raw []byte) []string {
	t.Helper()
	sc := wire.NewScanner(bytes.NewReader(raw))
	var ops []string
	for {
		ins, err := sc.Next()
		if err != nil {
			break
		}
		ops = append(ops, ins.Opcode)
	}
	return ops
}

func TestAllocLayerUsesPositiveIndicesStartingAtOne(t *testing.T) {
	d := New(100, 100, gwsocket.NewMemSocket())
	l1 := d.AllocLayer(10, 10)
	l2 := d.AllocLayer(10, 10)
	assert.Equal(t, 1, l1.ID())
	assert.Equal(t, 2, l2.ID())
}

func TestAllocBufferUsesNegativeIndices(t *testing.T) {
	d := New(100, 100, gwsocket.NewMemSocket())
	b1 := d.AllocBuffer(10, 10)
	b2 := d.AllocBuffer(10, 10)
	assert.Equal(t, -1, b1.ID())
	assert.Equal(t, -2, b2.ID())
}

func TestFreeLayerThenAllocReusesIndex(t *testing.T) {
	d := New(100, 100, gwsocket.NewMemSocket())
	l1 := d.AllocLayer(10, 10)
	d.FreeLayer(l1.ID())
	// l1 already counted as one allocation, so minSize-1 more reach the
	// grace threshold without yet consuming the freed index.
	for i := 0; i < idpoolDefaultMinSize()-1; i++ {
		d.AllocLayer(1, 1)
	}
	reused := d.AllocLayer(1, 1)
	assert.Equal(t, l1.ID(), reused.ID(), "freed index becomes eligible for reuse after the grace period")
}

func idpoolDefaultMinSize() int { return 256 }

func TestDupReplaysCursorDefaultSurfaceLayersThenBuffers(t *testing.T) {
	d := New(64, 64, gwsocket.NewMemSocket())
	d.AllocLayer(8, 8)
	d.AllocBuffer(8, 8)

	sock := gwsocket.NewMemSocket()
	d.Dup(sock)

	ops := decodeOps(t, sock.Bytes())
	require.NotEmpty(t, ops)
	assert.Equal(t, "mouse", ops[0], "cursor replay leads with mouse even with no image installed")

	// default surface: size, img, blob, end (no shade/move for layer 0)
	assert.Equal(t, []string{"size", "img", "blob", "end"}, ops[1:5])

	// extra layer: size, shade, move, img, blob, end
	assert.Equal(t, []string{"size", "shade", "move", "img", "blob", "end"}, ops[5:11])

	// buffer: size, img, blob, end (buffers have no location/opacity)
	assert.Equal(t, []string{"size", "img", "blob", "end"}, ops[11:15])
}

func TestFlushSkipsOffScreenBuffers(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	d := New(64, 64, sock)
	buf := d.AllocBuffer(8, 8)
	buf.Set(0, 0, 8, 8, 1, 2, 3, 0xFF)
	before := len(sock.Bytes())
	d.Flush()
	// buffers write to the display's shared socket, so a flushed dirty
	// buffer would add rect/cfill here; the default surface is clean.
	assert.Equal(t, before, len(sock.Bytes()))
}

func TestSetLosslessAppliesToExistingAndFutureSurfaces(t *testing.T) {
	d := New(64, 64, gwsocket.NewMemSocket())
	l1 := d.AllocLayer(8, 8)
	d.SetLossless(true)
	l2 := d.AllocLayer(8, 8)

	// Both surfaces should now reject lossy encode paths; verified
	// indirectly via the surface package's own lossless-gated behavior,
	// so here we just confirm both exist and the flag was accepted
	// without error across pre- and post-toggle allocations.
	assert.NotNil(t, l1)
	assert.NotNil(t, l2)
}
