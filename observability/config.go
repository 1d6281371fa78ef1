package observability

import "time"

// Config is the telemetry section of the application config.
type Config struct {
	MeterEnabled  bool          `yaml:"meter_enabled" mapstructure:"meter_enabled"`
	TracerEnabled bool          `yaml:"tracer_enabled" mapstructure:"tracer_enabled"`
	Endpoint      string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure      bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval      time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
	SampleRate    float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// MeterConfig derives the meter provider settings for a service.
func (c Config) MeterConfig(service, version, environment string) MeterConfig {
	return MeterConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Interval:       c.Interval,
	}
}

// TracerConfig derives the tracer provider settings for a service.
func (c Config) TracerConfig(service, version, environment string) TracerConfig {
	return TracerConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}
