package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/kbukum/framepipe/bootstrap"
	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/ledger"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/sse"
	"github.com/kbukum/framepipe/status"
)

// runner wires one framepipe run onto a bootstrapped app.
type runner struct {
	app     *bootstrap.App[*AppConfig]
	log     *logger.Logger
	input   io.Reader
	ledger  *ledger.Component
	status  *status.Server
	events  *sse.Component
	pub     sse.Publisher
	metrics *observability.Metrics
}

// newRunner registers the telemetry, ledger, status and event components the
// config enables. input feeds the quit-key watcher and may be nil.
func newRunner(app *bootstrap.App[*AppConfig], input io.Reader) (*runner, error) {
	cfg := app.Cfg
	r := &runner{app: app, log: app.Logger, input: input}

	if cfg.Telemetry.MeterEnabled || cfg.Telemetry.TracerEnabled {
		if err := app.RegisterComponent(telemetryComponent(cfg)); err != nil {
			return nil, err
		}
	}
	if cfg.Ledger.Enabled {
		r.ledger = ledger.NewComponent(cfg.Ledger, app.Logger)
		if err := app.RegisterComponent(r.ledger); err != nil {
			return nil, err
		}
	}
	if cfg.Status.Enabled {
		r.status = status.New(cfg.Status, cfg.Name, app.Logger)
		r.status.SetHealthChecker(app.Components.HealthAll)
		if r.ledger != nil {
			r.status.SetRunStore(r.ledger)
		}
		if err := app.RegisterComponent(r.status); err != nil {
			return nil, err
		}
		// Registered after the server so it stops first and ends open streams.
		r.events = sse.NewComponent(app.Logger)
		r.status.SetEventHub(r.events.Hub())
		r.pub = r.events.Hub()
		if err := app.RegisterComponent(r.events); err != nil {
			return nil, err
		}
	}

	app.OnConfigure(func(context.Context, *bootstrap.App[*AppConfig]) error {
		if !cfg.Telemetry.MeterEnabled {
			return nil
		}
		m, err := observability.NewMetrics(observability.Meter(cfg.Name))
		if err != nil {
			return fmt.Errorf("creating metrics: %w", err)
		}
		r.metrics = m
		return nil
	})
	return r, nil
}

// telemetryComponent installs the OTLP meter and tracer providers on start
// and flushes them on stop.
func telemetryComponent(cfg *AppConfig) component.Component {
	var shutdown []func(context.Context) error
	return &component.Func{
		ComponentName: "telemetry",
		OnStart: func(ctx context.Context) error {
			if cfg.Telemetry.MeterEnabled {
				mc := cfg.Telemetry.MeterConfig(cfg.Name, cfg.Version, cfg.Environment)
				mp, err := observability.InitMeter(ctx, &mc)
				if err != nil {
					return err
				}
				shutdown = append(shutdown, mp.Shutdown)
			}
			if cfg.Telemetry.TracerEnabled {
				tp, err := observability.InitTracer(ctx, cfg.Telemetry.TracerConfig(cfg.Name, cfg.Version, cfg.Environment))
				if err != nil {
					return err
				}
				shutdown = append(shutdown, tp.Shutdown)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var firstErr error
			for i := len(shutdown) - 1; i >= 0; i-- {
				if err := shutdown[i](ctx); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			shutdown = nil
			return firstErr
		},
	}
}

// run executes one pipeline run: source, grayscale, display and, when
// enabled, the ledger.
func (r *runner) run(ctx context.Context) (*pipeline.Report, error) {
	cfg := r.app.Cfg

	src, err := frame.NewSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	var input io.Reader
	if cfg.Sink.QuitKey != "" {
		input = r.input
	}
	sink, err := frame.NewSink(cfg.Sink, r.log, input)
	if err != nil {
		src.Close()
		return nil, err
	}
	quit, _ := sink.(*frame.QuitSink)

	runID := uuid.NewString()
	var store *ledger.Ledger
	if r.ledger != nil {
		store = r.ledger.Ledger()
	}
	if store != nil {
		if err := store.StartRun(ctx, runID, sourceLabel(cfg.Source), src.TotalCount()); err != nil {
			src.Close()
			return nil, err
		}
		sink = frame.Tee(sink, store.Sink(runID))
	}

	var p *pipeline.Pipeline[frame.Frame, frame.Frame]
	opts := []pipeline.Option{
		pipeline.WithConfig(cfg.Pipeline),
		pipeline.WithRunID(runID),
		pipeline.WithLogger(r.log),
		pipeline.WithMetrics(r.metrics),
	}
	if r.pub != nil {
		opts = append(opts, pipeline.OnStateChange(func(from, to pipeline.State) {
			r.publish(runID, sse.EventTypeState, sse.StateEvent{
				RunID: runID, From: from.String(), To: to.String(), Progress: p.Progress(),
			})
		}))
	}
	p = pipeline.New(src, pipeline.Transform[frame.Frame, frame.Frame](frame.Grayscale), sink, opts...)
	if r.status != nil {
		r.status.SetReporter(p)
	}

	report, runErr := p.Run(ctx)
	if quit != nil && quit.Requested() {
		r.log.Info("quit key pressed, run stopped early", logger.Fields(logger.FieldRunID, runID))
	}
	if store != nil && report != nil {
		if err := store.FinishRun(context.WithoutCancel(ctx), report); err != nil {
			r.log.Warn("ledger update failed", logger.ErrorFields("finish_run", err))
		}
	}
	if r.pub != nil && report != nil {
		r.publish(runID, sse.EventTypeReport, report)
	}
	return report, runErr
}

func (r *runner) publish(runID, eventType string, v any) {
	if err := r.pub.Publish(runID, eventType, v); err != nil {
		r.log.Warn("event publish failed", logger.ErrorFields("publish_"+eventType, err))
	}
}

func sourceLabel(c frame.SourceConfig) string {
	if c.Kind == frame.SourceRaw {
		return fmt.Sprintf("raw:%s %dx%dx%d", c.Path, c.Width, c.Height, c.Channels)
	}
	return fmt.Sprintf("synthetic %dx%dx%d", c.Width, c.Height, c.Channels)
}
