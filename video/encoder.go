// Package video turns captured frames into image chunks and paces them onto
// a live session.
package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"livelink/core"

	"golang.org/x/image/draw"
)

const (
	DefaultScale   = 0.25
	DefaultQuality = 100
)

// ErrEmptyFrame is returned for frames whose scaled size has no area.
var ErrEmptyFrame = errors.New("video: frame has no area")

// Encoder downscales a frame and encodes it as a JPEG chunk.
type Encoder struct {
	Scale        float64
	Quality      int
	Interpolator draw.Interpolator
}

func NewEncoder() *Encoder {
	return &Encoder{
		Scale:        DefaultScale,
		Quality:      DefaultQuality,
		Interpolator: draw.ApproxBiLinear,
	}
}

// Size returns the scaled dimensions of a frame with the given bounds.
func (e *Encoder) Size(bounds image.Rectangle) (int, int) {
	return int(float64(bounds.Dx()) * e.Scale), int(float64(bounds.Dy()) * e.Scale)
}

// Encode returns an image/jpeg chunk holding the raw JPEG bytes.
func (e *Encoder) Encode(img image.Image) (core.Chunk, error) {
	if img == nil {
		return core.Chunk{}, ErrEmptyFrame
	}
	src := img.Bounds()
	w, h := e.Size(src)
	if w == 0 || h == 0 {
		return core.Chunk{}, ErrEmptyFrame
	}

	interp := e.Interpolator
	if interp == nil {
		interp = draw.ApproxBiLinear
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	interp.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: e.Quality}); err != nil {
		return core.Chunk{}, fmt.Errorf("video: encode jpeg: %w", err)
	}
	return core.Chunk{MimeType: core.MimeTypeJPEG, Data: buf.Bytes()}, nil
}
