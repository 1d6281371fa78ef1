package pipeline

import "github.com/kbukum/framepipe/boundedchan"

// Config is the pipeline section of the application config.
type Config struct {
	// Capacity is the size of each inter-stage buffer.
	Capacity int `yaml:"capacity" mapstructure:"capacity" validate:"min=1"`
	// MaxItems caps how many items are read from the source. Zero means no cap.
	MaxItems int `yaml:"max_items" mapstructure:"max_items" validate:"gte=0"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = boundedchan.DefaultCapacity
	}
}
