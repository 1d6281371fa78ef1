package frame

import (
	"context"
	"io"

	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
)

// NewSource builds the source cfg describes. Every frame it yields is
// validated on extraction.
func NewSource(cfg SourceConfig) (pipeline.Source[Frame], error) {
	if cfg.Kind == SourceRaw {
		src, err := OpenRaw(cfg.Path, cfg.Width, cfg.Height, cfg.Channels)
		if err != nil {
			return nil, err
		}
		return Validated(src), nil
	}
	return Validated(NewSynthetic(cfg.Width, cfg.Height, cfg.Channels, cfg.Count)), nil
}

// Validated fails the stream at the first malformed frame src yields.
func Validated(src pipeline.Source[Frame]) pipeline.Source[Frame] {
	return pipeline.Tap(src, func(_ context.Context, f Frame) error {
		return f.Validate()
	})
}

// NewSink builds the display sink cfg describes, wrapped with pacing, a
// frame limit and, when input is non-nil and a quit key is set, a quit-key
// watcher on input.
func NewSink(cfg SinkConfig, log *logger.Logger, input io.Reader) (pipeline.Sink[Frame], error) {
	var sink pipeline.Sink[Frame]
	switch cfg.Kind {
	case SinkDir:
		dir, err := NewDirSink(cfg.OutDir, cfg.Format)
		if err != nil {
			return nil, err
		}
		sink = dir
	case SinkDiscard:
		sink = Discard
	default:
		sink = NewLogSink(log)
	}
	sink = Paced(sink, cfg.FrameDelay)
	sink = Limit(sink, cfg.StopAfter)
	if input != nil && cfg.QuitKey != "" {
		sink = WatchQuitKey(sink, input, []rune(cfg.QuitKey)[0])
	}
	return sink, nil
}
