package codec

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()

	png, ok := r.Get(FormatPNG)
	require.True(t, ok)
	assert.Equal(t, "image/png", png.Mimetype())

	jpg, ok := r.Get(FormatJPEG)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", jpg.Mimetype())

	webp, ok := r.Get(FormatWebP)
	require.True(t, ok)
	var buf bytes.Buffer
	err := webp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)), 80)
	assert.ErrorIs(t, err, ErrEncoderUnavailable)
}

func TestPNGEncodeRoundTripDecodable(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, PNGEncoder{}.Encode(&buf, img, 0))
	assert.True(t, buf.Len() > 0)
}

func TestJPEGQualityClamped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, JPEGEncoder{}.Encode(&buf, img, 500))
	assert.True(t, buf.Len() > 0)
}

func TestRegistryAllowsOverride(t *testing.T) {
	r := NewRegistry()
	r.Register(FormatWebP, PNGEncoder{}) // stand-in real encoder
	e, _ := r.Get(FormatWebP)
	var buf bytes.Buffer
	require.NoError(t, e.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)), 0))
}
