package codec

import (
	"image"
	"image/png"
	"io"
)

// PNGEncoder is the reference lossless encoder. PNG is always
// acceptable per spec.
type PNGEncoder struct{}

func (PNGEncoder) Encode(w io.Writer, img *image.RGBA, _ int) error {
	return png.Encode(w, img)
}

func (PNGEncoder) Mimetype() string { return string(FormatPNG) }
