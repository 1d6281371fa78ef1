package frame

import (
	"time"

	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/validation"
)

// Source kinds.
const (
	SourceRaw       = "raw"
	SourceSynthetic = "synthetic"
)

// Sink kinds.
const (
	SinkDir     = "dir"
	SinkLog     = "log"
	SinkDiscard = "discard"
)

// DefaultFrameDelay holds each frame for roughly one tick of a 24 fps clip.
const DefaultFrameDelay = 42 * time.Millisecond

// SourceConfig selects and shapes the frame source.
type SourceConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind" validate:"oneof=raw synthetic"`
	Path     string `yaml:"path" mapstructure:"path"`
	Width    int    `yaml:"width" mapstructure:"width" validate:"min=1"`
	Height   int    `yaml:"height" mapstructure:"height" validate:"min=1"`
	Channels int    `yaml:"channels" mapstructure:"channels" validate:"oneof=1 3 4"`
	// Count is the number of frames a synthetic source produces.
	Count int `yaml:"count" mapstructure:"count" validate:"gte=0"`
}

// ApplyDefaults fills empty fields.
func (c *SourceConfig) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = SourceSynthetic
	}
	if c.Width == 0 {
		c.Width = 320
	}
	if c.Height == 0 {
		c.Height = 240
	}
	if c.Channels == 0 {
		c.Channels = 3
	}
	if c.Kind == SourceSynthetic && c.Count == 0 {
		c.Count = 48
	}
}

// Validate checks tags and that a raw source names its file.
func (c *SourceConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.Kind == SourceRaw && c.Path == "" {
		return errors.MissingField("source.path")
	}
	return nil
}

// SinkConfig selects how frames are displayed.
type SinkConfig struct {
	Kind   string `yaml:"kind" mapstructure:"kind" validate:"oneof=dir log discard"`
	OutDir string `yaml:"out_dir" mapstructure:"out_dir"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=png pgm"`
	// FrameDelay is how long each frame is held after display.
	FrameDelay time.Duration `yaml:"frame_delay" mapstructure:"frame_delay" validate:"gte=0"`
	// QuitKey stops the run when read from stdin. Empty disables it.
	QuitKey   string `yaml:"quit_key" mapstructure:"quit_key" validate:"omitempty,len=1"`
	StopAfter int    `yaml:"stop_after" mapstructure:"stop_after" validate:"gte=0"`
}

// ApplyDefaults fills empty fields.
func (c *SinkConfig) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = SinkLog
	}
	if c.Format == "" {
		c.Format = FormatPGM
	}
	if c.Kind == SinkDir && c.OutDir == "" {
		c.OutDir = "frames"
	}
}

// Validate checks tags and that a directory sink names its directory.
func (c *SinkConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.Kind == SinkDir && c.OutDir == "" {
		return errors.MissingField("sink.out_dir")
	}
	return nil
}
