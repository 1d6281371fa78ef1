package main

import (
	"fmt"

	"github.com/kbukum/framepipe/config"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/ledger"
	"github.com/kbukum/framepipe/observability"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/status"
	"github.com/kbukum/framepipe/validation"
)

// AppConfig is the full framepipe configuration.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Pipeline  pipeline.Config      `yaml:"pipeline" mapstructure:"pipeline"`
	Source    frame.SourceConfig   `yaml:"source" mapstructure:"source"`
	Sink      frame.SinkConfig     `yaml:"sink" mapstructure:"sink"`
	Ledger    ledger.Config        `yaml:"ledger" mapstructure:"ledger"`
	Status    status.Config        `yaml:"status" mapstructure:"status"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults fills every section.
func (c *AppConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	c.Source.ApplyDefaults()
	c.Sink.ApplyDefaults()
	c.Ledger.ApplyDefaults()
	c.Status.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks every section and stops at the first invalid one.
func (c *AppConfig) Validate() error {
	checks := []struct {
		section string
		check   func() error
	}{
		{"service", c.ServiceConfig.Validate},
		{"pipeline", func() error { return validation.Validate(&c.Pipeline) }},
		{"source", c.Source.Validate},
		{"sink", c.Sink.Validate},
		{"ledger", c.Ledger.Validate},
		{"status", c.Status.Validate},
		{"telemetry", func() error { return validation.Validate(&c.Telemetry) }},
	}
	for _, ch := range checks {
		if err := ch.check(); err != nil {
			return fmt.Errorf("%s: %w", ch.section, err)
		}
	}
	return nil
}
