package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/framepipe/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter installs a global meter provider exporting over OTLP HTTP.
// The caller shuts the provider down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	itemsTotal    metric.Int64Counter
	itemDuration  metric.Float64Histogram
	blockedSends  metric.Int64Counter
	occupancyPeak metric.Int64Gauge
	runsTotal     metric.Int64Counter
	runDuration   metric.Float64Histogram
	errorTotal    metric.Int64Counter
}

// NewMetrics creates the pipeline instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	itemsTotal, err := meter.Int64Counter("pipeline.stage.items",
		metric.WithDescription("Items processed per stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.items counter: %w", err)
	}

	itemDuration, err := meter.Float64Histogram("pipeline.stage.item.duration",
		metric.WithDescription("Time a stage spends on one item"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.stage.item.duration histogram: %w", err)
	}

	blockedSends, err := meter.Int64Counter("pipeline.channel.blocked_sends",
		metric.WithDescription("Sends that waited for a free slot"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.channel.blocked_sends counter: %w", err)
	}

	occupancyPeak, err := meter.Int64Gauge("pipeline.channel.max_occupancy",
		metric.WithDescription("Highest number of buffered items seen in a run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.channel.max_occupancy gauge: %w", err)
	}

	runsTotal, err := meter.Int64Counter("pipeline.runs",
		metric.WithDescription("Pipeline runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.runs counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("pipeline.run.duration",
		metric.WithDescription("Wall time of a pipeline run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.duration histogram: %w", err)
	}

	errorTotal, err := meter.Int64Counter("pipeline.errors",
		metric.WithDescription("Stage errors by stage and code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.errors counter: %w", err)
	}

	return &Metrics{
		itemsTotal:    itemsTotal,
		itemDuration:  itemDuration,
		blockedSends:  blockedSends,
		occupancyPeak: occupancyPeak,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		errorTotal:    errorTotal,
	}, nil
}

// RecordItem records one item handled by stage.
func (m *Metrics) RecordItem(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrStage, stage))
	m.itemsTotal.Add(ctx, 1, attrs)
	m.itemDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordChannel records the end-of-run counters of a channel.
func (m *Metrics) RecordChannel(ctx context.Context, channel string, blockedSends int64, maxOccupancy int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrChannel, channel))
	m.blockedSends.Add(ctx, blockedSends, attrs)
	m.occupancyPeak.Record(ctx, int64(maxOccupancy), attrs)
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcome))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordError records a stage error by code.
func (m *Metrics) RecordError(ctx context.Context, stage, code string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrErrorCode, code),
	))
}
