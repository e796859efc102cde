package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64RoundTrip(t *testing.T) {
	data := []byte("Hello")
	enc := EncodeBlob(data)
	assert.Equal(t, "SGVsbG8=", enc)

	n, err := DecodeBlob(nil, enc)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func TestBase64RoundTripArbitrary(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03, 0x04, 0x05},
		bytesRange(300),
	} {
		enc := EncodeBlob(data)
		var dst []byte
		n, err := DecodeBlob(dst, enc)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
	}
}

func bytesRange(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
