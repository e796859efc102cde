package codec

import (
	"image"
	"image/jpeg"
	"io"
)

// JPEGEncoder is the reference lossy encoder used for opaque regions
// above the area threshold when the local framerate is high enough.
type JPEGEncoder struct{}

func (JPEGEncoder) Encode(w io.Writer, img *image.RGBA, quality int) error {
	q := clampQuality(quality)
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

func (JPEGEncoder) Mimetype() string { return string(FormatJPEG) }

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
