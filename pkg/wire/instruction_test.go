package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := Encode("size", "0", "1024", "768")
	assert.Equal(t, "4.size,1.0,4.1024,3.768;", s)

	inst, err := Decode(s)
	require.NoError(t, err)
	assert.Equal(t, "size", inst.Opcode)
	assert.Equal(t, []string{"0", "1024", "768"}, inst.Args)
}

func TestFieldLengthIsCodepointsNotBytes(t *testing.T) {
	// "héllo" is 5 code points, 6 UTF-8 bytes.
	f := Field("héllo")
	assert.Equal(t, "5.héllo", f)
	assert.Equal(t, 6, len(f)-len("5."))
}

func TestDecodeHandlesCommaAndSemicolonInsidePayload(t *testing.T) {
	payload := "a;b,c"
	s := Encode("msg", payload)
	inst, err := Decode(s)
	require.NoError(t, err)
	require.Len(t, inst.Args, 1)
	assert.Equal(t, payload, inst.Args[0])
}

func TestScannerReadsMultipleInstructions(t *testing.T) {
	stream := Encode("sync", "1000") + Encode("msg", "a;b,c") + Encode("ready", "abc")
	sc := NewScanner(strings.NewReader(stream))

	i1, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "sync", i1.Opcode)

	i2, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a;b,c"}, i2.Args)

	i3, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "ready", i3.Opcode)
	assert.Equal(t, []string{"abc"}, i3.Args)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := Decode("not-a-field;")
	assert.Error(t, err)
}
