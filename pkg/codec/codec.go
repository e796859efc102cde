// Package codec defines the image-encoding boundary the surface
// compositor depends on. Concrete codec implementations (PNG, JPEG,
// WebP) are external collaborators per spec; this package ships
// reference PNG/JPEG encoders built on the standard library and an
// interface-only WebP slot for an adapter to fill.
package codec

import (
	"errors"
	"image"
	"io"
)

// ErrEncoderUnavailable is returned by a boundary encoder that has no
// concrete implementation registered.
var ErrEncoderUnavailable = errors.New("codec: encoder unavailable")

// Format names the three encodings the surface compositor can choose
// between.
type Format string

const (
	FormatPNG  Format = "image/png"
	FormatJPEG Format = "image/jpeg"
	FormatWebP Format = "image/webp"
)

// Encoder compresses an RGBA image into a target format. quality is
// in [0,100] and is ignored by lossless encoders.
type Encoder interface {
	Encode(w io.Writer, img *image.RGBA, quality int) error
	Mimetype() string
}

// Registry maps formats to the encoder that implements them.
type Registry struct {
	encoders map[Format]Encoder
}

// NewRegistry creates a Registry pre-populated with the stdlib PNG
// and JPEG reference encoders and an Unavailable stand-in for WebP.
func NewRegistry() *Registry {
	r := &Registry{encoders: make(map[Format]Encoder, 3)}
	r.Register(FormatPNG, PNGEncoder{})
	r.Register(FormatJPEG, JPEGEncoder{})
	r.Register(FormatWebP, Unavailable{mimetype: string(FormatWebP)})
	return r
}

// Register installs (or replaces) the encoder for a format, letting an
// adapter supply a real WebP encoder at startup.
func (r *Registry) Register(f Format, e Encoder) {
	r.encoders[f] = e
}

// Get returns the encoder registered for f.
func (r *Registry) Get(f Format) (Encoder, bool) {
	e, ok := r.encoders[f]
	return e, ok
}

// Unavailable is installed for formats with no working implementation.
type Unavailable struct{ mimetype string }

func (u Unavailable) Encode(io.Writer, *image.RGBA, int) error { return ErrEncoderUnavailable }
func (u Unavailable) Mimetype() string                         { return u.mimetype }
