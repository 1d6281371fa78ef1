package frame

import (
	"bufio"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
)

// Output formats for DirSink.
const (
	FormatPGM = "pgm"
	FormatPNG = "png"
)

// DirSink writes every frame to its own file in a directory. Gray frames are
// written as PGM (P5) and color frames as PPM (P6) in FormatPGM; FormatPNG
// writes PNG for both.
type DirSink struct {
	dir    string
	format string
}

// NewDirSink creates dir if needed.
func NewDirSink(dir, format string) (*DirSink, error) {
	if format != FormatPGM && format != FormatPNG {
		return nil, errors.InvalidInput("format", fmt.Sprintf("unsupported output format %q", format))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOError(dir, err)
	}
	return &DirSink{dir: dir, format: format}, nil
}

// Path returns the file a frame with seq is written to.
func (s *DirSink) Path(f Frame) string {
	ext := s.format
	if s.format == FormatPGM && f.Channels != 1 {
		ext = "ppm"
	}
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.%s", f.Seq, ext))
}

// Consume writes f.
func (s *DirSink) Consume(_ context.Context, f Frame) (pipeline.Decision, error) {
	if err := f.Validate(); err != nil {
		return pipeline.Continue, err
	}
	path := s.Path(f)
	file, err := os.Create(path)
	if err != nil {
		return pipeline.Continue, errors.IOError(path, err)
	}
	w := bufio.NewWriter(file)
	if s.format == FormatPNG {
		err = png.Encode(w, f.Image())
	} else {
		err = EncodePNM(w, f)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return pipeline.Continue, errors.IOError(path, err)
	}
	return pipeline.Continue, nil
}

// EncodePNM writes f as binary PGM (gray) or PPM (color, converted to RGB).
func EncodePNM(w io.Writer, f Frame) error {
	magic := "P6"
	if f.Channels == 1 {
		magic = "P5"
	}
	if _, err := fmt.Fprintf(w, "%s\n%d %d\n255\n", magic, f.Width, f.Height); err != nil {
		return err
	}
	if f.Channels == 1 {
		_, err := w.Write(f.Pix)
		return err
	}
	row := make([]byte, f.Width*3)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * f.Channels
			row[x*3], row[x*3+1], row[x*3+2] = f.Pix[i+2], f.Pix[i+1], f.Pix[i]
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// LogSink logs one line per displayed frame.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a LogSink writing to log.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("display")}
}

func (s *LogSink) Consume(ctx context.Context, f Frame) (pipeline.Decision, error) {
	s.log.WithContext(ctx).Info("frame displayed", logger.Fields(
		logger.FieldSeq, f.Seq,
		"width", f.Width,
		"height", f.Height,
		"channels", f.Channels,
	))
	return pipeline.Continue, nil
}

// Discard accepts every frame and does nothing.
var Discard = pipeline.SinkFunc[Frame](func(context.Context, Frame) (pipeline.Decision, error) {
	return pipeline.Continue, nil
})

// Paced waits delay after every frame the wrapped sink accepts, the way a
// player holds each frame on screen. A done ctx cuts the wait short.
func Paced(next pipeline.Sink[Frame], delay time.Duration) pipeline.Sink[Frame] {
	if delay <= 0 {
		return next
	}
	return pipeline.SinkFunc[Frame](func(ctx context.Context, f Frame) (pipeline.Decision, error) {
		decision, err := next.Consume(ctx, f)
		if err != nil || decision == pipeline.Stop {
			return decision, err
		}
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return decision, nil
		case <-ctx.Done():
			return decision, ctx.Err()
		}
	})
}

// Limit stops the run once n frames have been consumed.
func Limit(next pipeline.Sink[Frame], n int) pipeline.Sink[Frame] {
	if n <= 0 {
		return next
	}
	var seen atomic.Int64
	return pipeline.SinkFunc[Frame](func(ctx context.Context, f Frame) (pipeline.Decision, error) {
		decision, err := next.Consume(ctx, f)
		if err != nil {
			return decision, err
		}
		if seen.Add(1) >= int64(n) {
			return pipeline.Stop, nil
		}
		return decision, nil
	})
}

// Tee forwards each frame to every sink in order. It stops on the first
// error and returns Stop if any sink asked to stop.
func Tee(sinks ...pipeline.Sink[Frame]) pipeline.Sink[Frame] {
	return pipeline.FanOut(sinks...)
}

// QuitSink wraps a sink and stops the run after the frame during which the
// quit key was read from an input stream.
type QuitSink struct {
	next pipeline.Sink[Frame]
	key  rune
	quit atomic.Bool
	once sync.Once
	done chan struct{}
}

// WatchQuitKey starts reading runes from input until key, EOF or a read
// error. Reading happens on its own goroutine because most inputs (a
// terminal) cannot be interrupted.
func WatchQuitKey(next pipeline.Sink[Frame], input io.Reader, key rune) *QuitSink {
	q := &QuitSink{next: next, key: key, done: make(chan struct{})}
	go q.watch(bufio.NewReader(input))
	return q
}

func (q *QuitSink) watch(r *bufio.Reader) {
	defer close(q.done)
	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			return
		}
		if ch == q.key {
			q.Quit()
			return
		}
	}
}

// Quit requests a stop after the next frame.
func (q *QuitSink) Quit() {
	q.once.Do(func() { q.quit.Store(true) })
}

// Requested reports whether the quit key was seen.
func (q *QuitSink) Requested() bool { return q.quit.Load() }

// watching returns a channel closed when the input reader goroutine exits.
func (q *QuitSink) watching() <-chan struct{} { return q.done }

func (q *QuitSink) Consume(ctx context.Context, f Frame) (pipeline.Decision, error) {
	decision, err := q.next.Consume(ctx, f)
	if err != nil {
		return decision, err
	}
	if q.quit.Load() {
		return pipeline.Stop, nil
	}
	return decision, nil
}
