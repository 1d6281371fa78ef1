package frame

import (
	"context"
)

// BT.601 luma weights in 14-bit fixed point: 0.299, 0.587 and 0.114 scaled
// by 1<<14. They sum to exactly 1<<14 so white stays 255.
const (
	lumaR     = 4899
	lumaG     = 9617
	lumaB     = 1868
	lumaShift = 14
	lumaRound = 1 << (lumaShift - 1)
)

// Luma returns the BT.601 luma of a BGR sample, rounded to nearest.
func Luma(b, g, r byte) byte {
	return byte((int(r)*lumaR + int(g)*lumaG + int(b)*lumaB + lumaRound) >> lumaShift)
}

// Grayscale converts a BGR or BGRA frame to a single-channel frame. Gray
// frames are returned unchanged. The input is never modified.
func Grayscale(_ context.Context, f Frame) (Frame, error) {
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	if f.Channels == 1 {
		return f, nil
	}

	out := f
	out.Channels = 1
	out.Pix = make([]byte, f.Width*f.Height)
	for i, o := 0, 0; o < len(out.Pix); i, o = i+f.Channels, o+1 {
		out.Pix[o] = Luma(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
	}
	return out, nil
}
