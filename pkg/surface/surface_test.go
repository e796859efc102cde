package surface

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/rectutil"
	"github.com/helixml/deskgate/pkg/wire"
)

func decodeAll(t *testing.T, raw []byte) []wire.Instruction {
	t.Helper()
	sc := wire.NewScanner(bytes.NewReader(raw))
	var out []wire.Instruction
	for {
		ins, err := sc.Next()
		if err != nil {
			break
		}
		out = append(out, ins)
	}
	return out
}

func TestSetOpaqueThenFlushEmitsExactlyRectAndCFill(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(1, 200, 200, sock)
	s.SetRealized(true)

	s.Set(10, 10, 20, 20, 0x11, 0x22, 0x33, 0xFF)
	s.Flush()

	ins := decodeAll(t, sock.Bytes())
	require.Len(t, ins, 2)
	assert.Equal(t, "rect", ins[0].Opcode)
	assert.Equal(t, "cfill", ins[1].Opcode)
	assert.Equal(t, []string{"1", "10", "10", "20", "20"}, ins[0].Args)
	assert.Equal(t, []string{"0", "1", "17", "34", "51", "255"}, ins[1].Args)
}

func TestDrawThenFlushEmitsImageTriplet(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(2, 64, 64, sock)
	s.SetRealized(true)

	src := &SourceImage{W: 8, H: 8, Stride: 32, Pix: make([]byte, 32*8), HasAlpha: false}
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}
	s.Draw(0, 0, src)
	s.Flush()

	ins := decodeAll(t, sock.Bytes())
	require.Len(t, ins, 3)
	assert.Equal(t, "img", ins[0].Opcode)
	assert.Equal(t, "blob", ins[1].Opcode)
	assert.Equal(t, "end", ins[2].Opcode)
}

func TestResizeConstrainsDirtyToNewBounds(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(3, 100, 100, sock)
	s.SetRealized(true)

	s.Set(80, 80, 20, 20, 0, 0, 0, 0xFF)
	require.False(t, s.Dirty().Empty())

	s.Resize(50, 50)
	assert.True(t, s.Dirty().Empty(), "dirty rect entirely outside the shrunk bounds must be cleared")
}

func TestCopySameSurfaceOverlapDirectionality(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(4, 10, 1, sock)

	for x := 0; x < 10; x++ {
		s.buf.set(x, 0, byte(x), byte(x), byte(x), 0xFF)
	}

	// Shift the whole row two pixels to the right: dst (x=2) is to the
	// right of src (x=0), so a naive forward copy would clobber source
	// pixels before they're read. copyRect must go backward here.
	s.Copy(s, 0, 0, 8, 1, 2, 0)

	for x := 2; x < 10; x++ {
		bb, _, _, _ := s.buf.at(x, 0)
		assert.Equal(t, byte(x-2), bb, "pixel %d should carry the original value from %d", x, x-2)
	}
}

func TestCrossSurfaceCopyEmitsCopyInstructionDirectly(t *testing.T) {
	sockA := gwsocket.NewMemSocket()
	sockB := gwsocket.NewMemSocket()
	src := New(10, 20, 20, sockA)
	dst := New(11, 20, 20, sockB)
	src.SetRealized(true)
	dst.SetRealized(true)

	for x := 0; x < 10; x++ {
		src.buf.set(x, 0, byte(x), 0, 0, 0xFF)
	}

	dst.Copy(src, 0, 0, 10, 1, 5, 5)

	ins := decodeAll(t, sockB.Bytes())
	require.Len(t, ins, 1, "a cross-surface copy should reach the wire as a single copy instruction, not queued as a bitmap")
	assert.Equal(t, "copy", ins[0].Opcode)
	assert.Equal(t, []string{"10", "0", "0", "10", "1", "1", "11", "5", "5"}, ins[0].Args)

	for x := 0; x < 10; x++ {
		bb, _, _, _ := dst.buf.at(5+x, 5)
		assert.Equal(t, byte(x), bb)
	}
}

func TestFreshSurfaceNeverRealizedAlwaysCombines(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(5, 500, 500, sock)
	// not realized: even far-apart updates must combine into one dirty rect.

	s.Set(0, 0, 10, 10, 1, 1, 1, 0xFF)
	s.Set(400, 400, 10, 10, 2, 2, 2, 0xFF)

	assert.Equal(t, 0, s.queue.len(), "unrealized surface should never defer to the queue")
	d := s.Dirty()
	assert.Equal(t, 410, d.W)
	assert.Equal(t, 410, d.H)
}

func TestPNGOptimalityEstimateDistinguishesFlatFromNoisy(t *testing.T) {
	flat := newPixelBuffer(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			flat.set(x, y, 0x10, 0x20, 0x30, 0xFF)
		}
	}
	noisy := newPixelBuffer(16, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			noisy.set(x, y, byte(x*7+y*13), byte(x*3), byte(y*5), 0xFF)
		}
	}
	r := rectutil.Rect{X: 0, Y: 0, W: 16, H: 16}
	flatScore := pngOptimalityEstimate(flat, r)
	noisyScore := pngOptimalityEstimate(noisy, r)
	assert.Greater(t, flatScore, noisyScore)
}

func TestFlushEmitsEveryIndependentQueuedRegion(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(6, 400, 400, sock)
	s.SetRealized(true)

	// Two far-apart opaque fills: the second defers the first onto the
	// queue instead of combining, so the flush walks a multi-item queue.
	s.Set(0, 0, 40, 40, 0xAA, 0x00, 0x00, 0xFF)
	s.Set(200, 200, 40, 40, 0xAA, 0x00, 0x00, 0xFF)
	require.Equal(t, 1, s.queue.len())

	s.Flush()

	ins := decodeAll(t, sock.Bytes())
	require.Len(t, ins, 4, "both regions must reach the wire as rect+cfill pairs")
	var rects [][]string
	for _, i := range ins {
		if i.Opcode == "rect" {
			rects = append(rects, i.Args)
		}
	}
	require.Len(t, rects, 2)
	assert.Contains(t, rects, []string{"6", "0", "0", "40", "40"})
	assert.Contains(t, rects, []string{"6", "200", "200", "40", "40"})
}

func TestFlushEmitsMergeGroupThatFindsNoFurtherPartner(t *testing.T) {
	sock := gwsocket.NewMemSocket()
	s := New(7, 400, 400, sock)
	s.SetRealized(true)

	// A and C are vertically adjacent 10x10 fills that only meet at
	// flush time (B, queued between them, keeps them apart in the
	// record-time dirty rect). The flush's first pass merges A+C into
	// one group; the second pass finds it nothing further to combine
	// with, and it must still be emitted alongside B.
	s.Set(0, 0, 10, 10, 0x10, 0x20, 0x30, 0xFF)     // A
	s.Set(0, 100, 100, 10, 0x10, 0x20, 0x30, 0xFF)  // B
	s.Set(0, 10, 10, 10, 0x10, 0x20, 0x30, 0xFF)    // C
	require.Equal(t, 2, s.queue.len())

	s.Flush()

	ins := decodeAll(t, sock.Bytes())
	require.Len(t, ins, 4, "the merged A+C group and B must both be flushed")
	var rects [][]string
	for _, i := range ins {
		if i.Opcode == "rect" {
			rects = append(rects, i.Args)
		}
	}
	require.Len(t, rects, 2)
	assert.Contains(t, rects, []string{"7", "0", "100", "100", "10"})
	assert.Contains(t, rects, []string{"7", "0", "0", "10", "20"})
}
