package frame

import (
	"fmt"
	"image"
	"time"

	"github.com/kbukum/framepipe/errors"
)

// Frame is one uncompressed video frame. Pipelines treat it as immutable.
type Frame struct {
	// Seq is the 1-based position in the clip.
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	// Channels is 1 for gray, 3 for BGR and 4 for BGRA.
	Channels int    `json:"channels"`
	Pix      []byte `json:"-"`
}

// Size returns the byte length a frame of w x h x channels must have.
func Size(width, height, channels int) int {
	return width * height * channels
}

// Size returns the expected length of f.Pix.
func (f Frame) Size() int { return Size(f.Width, f.Height, f.Channels) }

// Validate checks dimensions and buffer length.
func (f Frame) Validate() error {
	if f.Width < 1 || f.Height < 1 {
		return errors.InvalidInput("frame", fmt.Sprintf("frame %d has invalid dimensions %dx%d", f.Seq, f.Width, f.Height))
	}
	switch f.Channels {
	case 1, 3, 4:
	default:
		return errors.InvalidInput("channels", fmt.Sprintf("frame %d has unsupported channel count %d", f.Seq, f.Channels))
	}
	if len(f.Pix) != f.Size() {
		return errors.InvalidInput("pix", fmt.Sprintf("frame %d has %d bytes, want %d", f.Seq, len(f.Pix), f.Size()))
	}
	return nil
}

// Image returns f as an image.Image: *image.Gray for one channel and
// *image.NRGBA otherwise.
func (f Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: rect}
	}
	img := image.NewNRGBA(rect)
	for i, o := 0, 0; i < len(f.Pix); i, o = i+f.Channels, o+4 {
		a := uint8(255)
		if f.Channels == 4 {
			a = f.Pix[i+3]
		}
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = f.Pix[i+2], f.Pix[i+1], f.Pix[i], a
	}
	return img
}
