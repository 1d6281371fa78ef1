package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/framepipe/boundedchan"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
)

// errRunFinished cancels both channels once every stage has returned.
var errRunFinished = stderrors.New("pipeline run finished")

// runEnv is what every stage of one run shares.
type runEnv struct {
	runID   string
	log     *logger.Logger
	metrics *observability.Metrics
}

// Pipeline connects a Source, a Transform and a Sink through two bounded
// channels. It is single-use.
type Pipeline[R, D any] struct {
	source    Source[R]
	transform Transform[R, D]
	sink      Sink[D]
	opts      options

	state atomic.Int32

	mu          sync.Mutex
	runID       string
	startedAt   time.Time
	raw         *boundedchan.Channel[R]
	derived     *boundedchan.Channel[D]
	extractor   *Extractor[R]
	transformer *Transformer[R, D]
	sinkRunner  *SinkRunner[D]
	report      *Report
}

// New creates an idle Pipeline.
func New[R, D any](source Source[R], transform Transform[R, D], sink Sink[D], opts ...Option) *Pipeline[R, D] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}
	return &Pipeline[R, D]{source: source, transform: transform, sink: sink, opts: o}
}

// State returns the current lifecycle state.
func (p *Pipeline[R, D]) State() State {
	return State(p.state.Load())
}

// transition moves from one state to another and notifies observers. It
// reports false when the pipeline was not in from.
func (p *Pipeline[R, D]) transition(from, to State) bool {
	if !p.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	for _, fn := range p.opts.onStateChange {
		fn(from, to)
	}
	return true
}

type stageResult struct {
	stage string
	err   error
}

// Run executes the pipeline to completion. The returned Report is non-nil
// for every run that started. The error is nil for Completed and Stopped
// outcomes, CANCELLED when ctx ended the run and STAGE_FAILED when a
// collaborator failed.
func (p *Pipeline[R, D]) Run(ctx context.Context) (*Report, error) {
	if !p.transition(StateIdle, StateRunning) {
		return nil, errors.AlreadyRun()
	}

	runID := p.opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	env := &runEnv{runID: runID, log: p.opts.log, metrics: p.opts.metrics}

	ctx = logger.ContextWithRunID(ctx, runID)
	ctx, span := observability.StartSpan(ctx, observability.SpanPipelineRun,
		trace.WithAttributes(attribute.String(observability.AttrRunID, runID)))
	defer span.End()
	log := p.opts.log.WithComponent("pipeline").WithContext(ctx)

	raw := boundedchan.New[R]("raw", p.opts.capacity)
	derived := boundedchan.New[D]("derived", p.opts.capacity)
	extractor := newExtractor(env, p.source, raw, p.opts.maxItems)
	transformer := newTransformer(env, p.transform, raw, derived)
	sinkRunner := newSinkRunner(env, p.sink, derived)

	p.mu.Lock()
	p.runID, p.startedAt = runID, time.Now()
	p.raw, p.derived = raw, derived
	p.extractor, p.transformer, p.sinkRunner = extractor, transformer, sinkRunner
	startedAt := p.startedAt
	p.mu.Unlock()

	log.Info("pipeline started", logger.Fields(
		"capacity", raw.Cap(),
		logger.FieldTotal, p.source.TotalCount(),
	))

	results := make(chan stageResult, 3)
	launch := func(name string, fn func(context.Context) error) {
		go func() { results <- stageResult{stage: name, err: fn(ctx)} }()
	}
	launch(StageExtractor, extractor.run)
	launch(StageTransformer, transformer.run)
	launch(StageSink, sinkRunner.run)

	var (
		outcome Outcome
		runErr  error
	)
	settle := func(o Outcome, err, cause error) {
		if outcome != "" {
			return
		}
		outcome, runErr = o, err
		raw.Cancel(cause)
		derived.Cancel(cause)
		p.transition(StateRunning, StateDraining)
	}

	done := ctx.Done()
	for pending := 3; pending > 0; {
		select {
		case r := <-results:
			pending--
			switch {
			case r.err == nil:
				if r.stage == StageExtractor {
					p.transition(StateRunning, StateDraining)
				}
			case r.err == ErrStopRequested:
				settle(OutcomeStopped, nil, ErrStopRequested)
			case errors.CodeOf(r.err) == errors.ErrCodeCancelled && ctx.Err() != nil:
				settle(OutcomeCancelled, errors.Cancelled(ctx.Err()), ctx.Err())
			case errors.CodeOf(r.err) == errors.ErrCodeCancelled && outcome != "":
				// released by a termination already settled
			default:
				if errors.CodeOf(r.err) != errors.ErrCodeStageFailed {
					r.err = errors.StageFailed(r.stage, r.err)
				}
				log.Error("stage failed", logger.Fields(logger.FieldStage, r.stage, logger.FieldError, r.err.Error()))
				settle(OutcomeFailed, r.err, r.err)
			}
		case <-done:
			done = nil
			settle(OutcomeCancelled, errors.Cancelled(ctx.Err()), ctx.Err())
		}
	}

	if outcome == "" {
		outcome = OutcomeCompleted
	}
	raw.Cancel(errRunFinished)
	derived.Cancel(errRunFinished)
	p.transition(StateRunning, StateDraining)

	if err := p.source.Close(); err != nil {
		log.Warn("source close failed", logger.ErrorFields("close", err))
	}

	report := &Report{
		RunID:       runID,
		Outcome:     outcome,
		Expected:    extractor.Limit(),
		Extracted:   extractor.Processed(),
		Transformed: transformer.Processed(),
		Consumed:    sinkRunner.Processed(),
		ShortRead:   extractor.ShortRead(),
		Raw:         raw.Stats(),
		Derived:     derived.Stats(),
		StartedAt:   startedAt,
		Duration:    time.Since(startedAt),
		Err:         runErr,
	}
	if runErr != nil {
		report.Error = runErr.Error()
		observability.SetSpanError(ctx, runErr)
	}

	env.metrics.RecordChannel(ctx, raw.Name(), report.Raw.BlockedSends, report.Raw.MaxOccupancy)
	env.metrics.RecordChannel(ctx, derived.Name(), report.Derived.BlockedSends, report.Derived.MaxOccupancy)
	env.metrics.RecordRun(ctx, string(outcome), report.Duration)
	span.SetAttributes(
		attribute.String(observability.AttrOutcome, string(outcome)),
		attribute.Int64(observability.AttrItems, report.Consumed),
		attribute.Int(observability.AttrExpected, report.Expected),
	)

	p.mu.Lock()
	p.report = report
	p.mu.Unlock()
	p.transition(StateDraining, StateDone)

	log.Info("pipeline finished", logger.Fields(
		logger.FieldOutcome, string(outcome),
		"extracted", report.Extracted,
		"consumed", report.Consumed,
		"short_read", report.ShortRead,
		"blocked_sends", report.Raw.BlockedSends+report.Derived.BlockedSends,
		logger.FieldDuration, report.Duration.Milliseconds(),
	))
	return report, runErr
}

// Progress returns a snapshot of the run. It is safe to call from any
// goroutine, before, during or after Run.
func (p *Pipeline[R, D]) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr := Progress{State: p.State().String(), Expected: -1, RunID: p.runID, StartedAt: p.startedAt, Report: p.report}
	if p.extractor == nil {
		return pr
	}
	pr.Expected = p.extractor.Limit()
	pr.Extracted = p.extractor.Processed()
	pr.Transformed = p.transformer.Processed()
	pr.Consumed = p.sinkRunner.Processed()
	pr.Raw = p.raw.Stats()
	pr.Derived = p.derived.Stats()
	return pr
}

// Stages returns the stage workers of the current run, or nil before Run.
func (p *Pipeline[R, D]) Stages() []*Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.extractor == nil {
		return nil
	}
	return []*Stage{&p.extractor.Stage, &p.transformer.Stage, &p.sinkRunner.Stage}
}
