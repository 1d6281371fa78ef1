package frame

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"github.com/kbukum/framepipe/errors"
)

// CountFrames returns how many whole frames of the given geometry a raw clip
// holds. A trailing partial frame is not counted.
func CountFrames(path string, width, height, channels int) (int, error) {
	size := Size(width, height, channels)
	if size <= 0 {
		return 0, errors.InvalidInput("geometry", "frame geometry must be positive")
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.IOError(path, err)
	}
	return int(info.Size() / int64(size)), nil
}

// RawSource reads fixed-size frames from a headerless raw clip.
type RawSource struct {
	path     string
	file     *os.File
	r        *bufio.Reader
	width    int
	height   int
	channels int
	total    int
	seq      int
}

// OpenRaw opens a raw clip and counts its frames up front.
func OpenRaw(path string, width, height, channels int) (*RawSource, error) {
	total, err := CountFrames(path, width, height, channels)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	return &RawSource{
		path:     path,
		file:     f,
		r:        bufio.NewReaderSize(f, Size(width, height, channels)),
		width:    width,
		height:   height,
		channels: channels,
		total:    total,
	}, nil
}

// TotalCount returns the frame count measured when the clip was opened.
func (s *RawSource) TotalCount() int { return s.total }

// Next reads the next frame. A clip that shrank since it was opened simply
// ends early.
func (s *RawSource) Next(_ context.Context) (Frame, bool, error) {
	buf := make([]byte, Size(s.width, s.height, s.channels))
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, false, nil
		}
		return Frame{}, false, errors.IOError(s.path, err)
	}
	s.seq++
	return Frame{
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     s.width,
		Height:    s.height,
		Channels:  s.channels,
		Pix:       buf,
	}, true, nil
}

// Close closes the clip file.
func (s *RawSource) Close() error {
	if err := s.file.Close(); err != nil {
		return errors.IOError(s.path, err)
	}
	return nil
}

// WriteRaw appends frames to w in the raw clip layout RawSource reads.
func WriteRaw(w io.Writer, frames ...Frame) error {
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, err := w.Write(f.Pix); err != nil {
			return err
		}
	}
	return nil
}

// SyntheticSource generates a moving BGR gradient. It can declare a count
// different from the number of frames it produces.
type SyntheticSource struct {
	width    int
	height   int
	channels int
	produce  int
	declared int
	seq      int
}

// NewSynthetic creates a source of count generated frames.
func NewSynthetic(width, height, channels, count int) *SyntheticSource {
	return &SyntheticSource{width: width, height: height, channels: channels, produce: count, declared: count}
}

// Declare overrides the count reported by TotalCount.
func (s *SyntheticSource) Declare(n int) *SyntheticSource {
	s.declared = n
	return s
}

func (s *SyntheticSource) TotalCount() int { return s.declared }

func (s *SyntheticSource) Next(_ context.Context) (Frame, bool, error) {
	if s.produce >= 0 && s.seq >= s.produce {
		return Frame{}, false, nil
	}
	s.seq++
	return Generate(s.seq, s.width, s.height, s.channels), true, nil
}

func (s *SyntheticSource) Close() error { return nil }

// Generate builds frame seq of the synthetic clip. Each channel is a
// diagonal gradient shifted by the frame number, so consecutive frames differ.
func Generate(seq, width, height, channels int) Frame {
	pix := make([]byte, Size(width, height, channels))
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				pix[i] = byte(x*3 + y*5 + seq*7 + c*85)
				i++
			}
		}
	}
	return Frame{Seq: seq, Timestamp: time.Now(), Width: width, Height: height, Channels: channels, Pix: pix}
}
