// Package observability wires OpenTelemetry tracing and metrics into the
// pipeline.
//
// Providers export over OTLP HTTP and are installed globally:
//
//	tp, err := observability.InitTracer(ctx, cfg.TracerConfig("framepipe", v, env))
//	defer tp.Shutdown(ctx)
//
//	mp, err := observability.InitMeter(ctx, &meterCfg)
//	defer mp.Shutdown(ctx)
//
// Metrics holds the pipeline instruments (items per stage, blocked sends,
// peak occupancy, runs by outcome). StartStage opens one span per stage
// goroutine under the run span.
package observability
