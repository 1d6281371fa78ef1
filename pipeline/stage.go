package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kbukum/framepipe/boundedchan"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
)

// Stage names, used in logs, spans, metrics and STAGE_FAILED details.
const (
	StageExtractor   = "extractor"
	StageTransformer = "transformer"
	StageSink        = "sink"
)

// ErrStopRequested is the cause attached to channel cancellation when the
// sink returns Stop, and the error a SinkRunner finishes with in that case.
var ErrStopRequested = stderrors.New("stop requested by sink")

// Stage is the state shared by all stage workers: a processed counter and a
// done signal. Err is valid once Done is closed.
type Stage struct {
	name      string
	env       *runEnv
	processed atomic.Int64
	done      chan struct{}
	err       error
}

func (s *Stage) init(name string, env *runEnv) {
	s.name = name
	s.env = env
	s.done = make(chan struct{})
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Processed returns how many items the stage has handed on.
func (s *Stage) Processed() int64 { return s.processed.Load() }

// Done is closed when the stage has stopped.
func (s *Stage) Done() <-chan struct{} { return s.done }

// Err returns the error the stage stopped with. Only valid after Done.
func (s *Stage) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// execute runs body under a stage span, converts panics to STAGE_FAILED and
// publishes the result through done.
func (s *Stage) execute(ctx context.Context, body func(ctx context.Context, span *observability.StageSpan, log *logger.Logger) error) (err error) {
	ctx, span := observability.StartStage(ctx, s.env.runID, s.name, s.env.metrics)
	log := s.env.log.WithComponent(s.name).WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = errors.StageFailed(s.name, fmt.Errorf("panic: %v", r))
		}
		span.End(ctx, s.processed.Load(), string(errors.CodeOf(err)), spanErr(err))
		s.err = err
		close(s.done)
		log.Debug("stage finished", logger.Fields(logger.FieldCount, s.processed.Load(), logger.FieldError, errString(err)))
	}()

	log.Debug("stage started")
	return body(ctx, span, log)
}

// spanErr hides the expected termination signals from tracing.
func spanErr(err error) error {
	if err == nil || err == ErrStopRequested {
		return nil
	}
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// collaboratorErr converts an error from user code into the stage's error:
// a done ctx means the run was cancelled, anything else is a stage failure.
func collaboratorErr(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return errors.Cancelled(ctx.Err())
	}
	return errors.StageFailed(stage, err)
}

// Extractor pulls items from a Source into the raw channel.
type Extractor[R any] struct {
	Stage
	source    Source[R]
	out       *boundedchan.Channel[R]
	maxItems  int
	limit     atomic.Int64
	shortRead atomic.Bool
}

// newExtractor creates an Extractor. maxItems > 0 caps the number of items
// read regardless of what the source declares.
func newExtractor[R any](env *runEnv, source Source[R], out *boundedchan.Channel[R], maxItems int) *Extractor[R] {
	e := &Extractor[R]{source: source, out: out, maxItems: maxItems}
	e.init(StageExtractor, env)
	e.limit.Store(-1)
	return e
}

// ShortRead reports whether the source ended before its declared count.
func (e *Extractor[R]) ShortRead() bool { return e.shortRead.Load() }

// Limit returns the number of items the extractor aims to read, or -1 when
// it reads until end-of-stream.
func (e *Extractor[R]) Limit() int { return int(e.limit.Load()) }

// run reads up to the limit, sending each item downstream, then closes the
// output. It returns CANCELLED when the run is torn down underneath it.
func (e *Extractor[R]) run(ctx context.Context) error {
	return e.execute(ctx, func(ctx context.Context, span *observability.StageSpan, log *logger.Logger) error {
		limit := e.source.TotalCount()
		if e.maxItems > 0 && (limit < 0 || limit > e.maxItems) {
			limit = e.maxItems
		}
		e.limit.Store(int64(limit))

		for seq := 1; limit < 0 || seq <= limit; seq++ {
			if e.out.Cancelled() {
				return errors.Cancelled(e.out.Cause())
			}
			if ctx.Err() != nil {
				return errors.Cancelled(ctx.Err())
			}

			start := time.Now()
			item, ok, err := e.source.Next(ctx)
			if err != nil {
				return collaboratorErr(ctx, e.name, err)
			}
			if !ok {
				if limit >= 0 {
					e.shortRead.Store(true)
					short := errors.SourceExhaustedEarly(limit, seq-1)
					log.Warn(short.Message, short.Details)
				}
				break
			}
			if err := e.out.Send(ctx, item); err != nil {
				return err
			}
			e.processed.Add(1)
			span.Item(ctx, time.Since(start))
			log.Debug("item extracted", logger.Fields(logger.FieldSeq, seq, logger.FieldTotal, limit))
		}

		e.out.Close()
		return nil
	})
}

// Transformer applies a Transform between the raw and derived channels.
type Transformer[R, D any] struct {
	Stage
	transform Transform[R, D]
	in        *boundedchan.Channel[R]
	out       *boundedchan.Channel[D]
}

func newTransformer[R, D any](env *runEnv, transform Transform[R, D], in *boundedchan.Channel[R], out *boundedchan.Channel[D]) *Transformer[R, D] {
	t := &Transformer[R, D]{transform: transform, in: in, out: out}
	t.init(StageTransformer, env)
	return t
}

// run transforms items until end-of-stream, then closes the output.
func (t *Transformer[R, D]) run(ctx context.Context) error {
	return t.execute(ctx, func(ctx context.Context, span *observability.StageSpan, log *logger.Logger) error {
		for {
			item, ok, err := t.in.Receive(ctx)
			if err != nil {
				return err
			}
			if !ok {
				t.out.Close()
				return nil
			}

			start := time.Now()
			derived, err := t.transform(ctx, item)
			if err != nil {
				return collaboratorErr(ctx, t.name, err)
			}
			if err := t.out.Send(ctx, derived); err != nil {
				return err
			}
			seq := t.processed.Add(1)
			span.Item(ctx, time.Since(start))
			log.Debug("item transformed", logger.Fields(logger.FieldSeq, seq))
		}
	})
}

// SinkRunner feeds the derived channel into a Sink.
type SinkRunner[D any] struct {
	Stage
	sink Sink[D]
	in   *boundedchan.Channel[D]
}

func newSinkRunner[D any](env *runEnv, sink Sink[D], in *boundedchan.Channel[D]) *SinkRunner[D] {
	r := &SinkRunner[D]{sink: sink, in: in}
	r.init(StageSink, env)
	return r
}

// run consumes until end-of-stream. It returns ErrStopRequested when the
// sink returns Stop.
func (s *SinkRunner[D]) run(ctx context.Context) error {
	return s.execute(ctx, func(ctx context.Context, span *observability.StageSpan, log *logger.Logger) error {
		for {
			item, ok, err := s.in.Receive(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}

			start := time.Now()
			decision, err := s.sink.Consume(ctx, item)
			if err != nil {
				return collaboratorErr(ctx, s.name, err)
			}
			seq := s.processed.Add(1)
			span.Item(ctx, time.Since(start))
			log.Debug("item consumed", logger.Fields(logger.FieldSeq, seq))

			if decision == Stop {
				log.Info("sink requested stop", logger.Fields(logger.FieldCount, seq))
				return ErrStopRequested
			}
		}
	})
}
