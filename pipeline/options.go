package pipeline

import (
	"github.com/kbukum/framepipe/boundedchan"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
)

type options struct {
	capacity      int
	maxItems      int
	runID         string
	log           *logger.Logger
	metrics       *observability.Metrics
	onStateChange []StateChangeFunc
}

func defaultOptions() options {
	return options{capacity: boundedchan.DefaultCapacity}
}

// Option configures a Pipeline.
type Option func(*options)

// WithConfig applies the capacity and item cap from cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.Capacity > 0 {
			o.capacity = cfg.Capacity
		}
		o.maxItems = cfg.MaxItems
	}
}

// WithCapacity sets the size of both inter-stage buffers.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithMaxItems caps the number of items read from the source.
func WithMaxItems(n int) Option {
	return func(o *options) { o.maxItems = n }
}

// WithRunID sets the run id instead of generating a UUID.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// WithLogger sets the base logger for the stages.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stage and run metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// OnStateChange registers fn to observe every state transition.
func OnStateChange(fn StateChangeFunc) Option {
	return func(o *options) { o.onStateChange = append(o.onStateChange, fn) }
}
