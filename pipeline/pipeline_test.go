package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kbukum/framepipe/boundedchan"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
)

const runTimeout = 5 * time.Second

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func double(n int) int { return n * 2 }

// collectSink records every item and stops after stopAt items when stopAt > 0.
type collectSink struct {
	mu     sync.Mutex
	items  []int
	stopAt int
	delay  time.Duration
}

func (s *collectSink) Consume(_ context.Context, v int) (Decision, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, v)
	if s.stopAt > 0 && len(s.items) >= s.stopAt {
		return Stop, nil
	}
	return Continue, nil
}

func (s *collectSink) got() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func newPipeline(src Source[int], sink Sink[int], opts ...Option) *Pipeline[int, int] {
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	return New(src, TransformFunc(double), sink, opts...)
}

func run(t *testing.T, ctx context.Context, p *Pipeline[int, int]) (*Report, error) {
	t.Helper()
	type result struct {
		report *Report
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := p.Run(ctx)
		ch <- result{r, err}
	}()
	select {
	case r := <-ch:
		assertStagesDone(t, p)
		return r.report, r.err
	case <-time.After(runTimeout):
		t.Fatalf("pipeline did not finish within %v: %+v", runTimeout, p.Progress())
		return nil, nil
	}
}

func assertStagesDone(t *testing.T, p *Pipeline[int, int]) {
	t.Helper()
	for _, s := range p.Stages() {
		select {
		case <-s.Done():
		default:
			t.Errorf("stage %s still running after Run returned", s.Name())
		}
	}
	if p.State() != StateDone {
		t.Errorf("expected state done, got %s", p.State())
	}
}

func TestRunDeliversEveryItemInOrder(t *testing.T) {
	tests := []struct {
		n, capacity int
	}{
		{0, 1},
		{0, 10},
		{1, 1},
		{3, 1},
		{10, 3},
		{100, 10},
		{250, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/cap=%d", tt.n, tt.capacity), func(t *testing.T) {
			sink := &collectSink{}
			p := newPipeline(FromSlice(seq(tt.n)), sink, WithCapacity(tt.capacity))

			report, err := run(t, context.Background(), p)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			want := make([]int, tt.n)
			for i := range want {
				want[i] = (i + 1) * 2
			}
			if got := sink.got(); !slices.Equal(got, want) && !(len(got) == 0 && tt.n == 0) {
				t.Fatalf("sink got %v, want %v", got, want)
			}
			if report.Outcome != OutcomeCompleted {
				t.Errorf("expected completed, got %s", report.Outcome)
			}
			if report.Consumed != int64(tt.n) || report.Extracted != int64(tt.n) || report.Transformed != int64(tt.n) {
				t.Errorf("unexpected counts %+v", report)
			}
			if report.ShortRead {
				t.Error("unexpected short read")
			}
			for _, s := range []boundedchan.Stats{report.Raw, report.Derived} {
				if s.MaxOccupancy > tt.capacity || s.Cap != tt.capacity {
					t.Errorf("occupancy %d exceeds capacity %d", s.MaxOccupancy, s.Cap)
				}
			}
		})
	}
}

func TestSlowSinkBlocksUpstream(t *testing.T) {
	sink := &collectSink{delay: time.Millisecond}
	p := newPipeline(FromSlice(seq(100)), sink, WithCapacity(10))

	report, err := run(t, context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Consumed != 100 {
		t.Fatalf("expected 100 consumed, got %d", report.Consumed)
	}
	if report.Derived.BlockedSends == 0 {
		t.Errorf("expected the transformer to block on a full buffer, stats %+v", report.Derived)
	}
	if report.Raw.BlockedSends == 0 {
		t.Errorf("expected the extractor to block on a full buffer, stats %+v", report.Raw)
	}
	if report.Raw.MaxOccupancy != 10 || report.Derived.MaxOccupancy != 10 {
		t.Errorf("expected both buffers to fill, raw=%d derived=%d", report.Raw.MaxOccupancy, report.Derived.MaxOccupancy)
	}
}

func TestSinkStopConsumesExactlyK(t *testing.T) {
	tests := []struct {
		n, stopAt, capacity int
	}{
		{50, 20, 10},
		{50, 1, 1},
		{1000, 5, 2},
		{3, 3, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/stop=%d/cap=%d", tt.n, tt.stopAt, tt.capacity), func(t *testing.T) {
			sink := &collectSink{stopAt: tt.stopAt}
			p := newPipeline(FromSlice(seq(tt.n)), sink, WithCapacity(tt.capacity))

			report, err := run(t, context.Background(), p)
			if err != nil {
				t.Fatalf("a sink stop is not an error, got %v", err)
			}
			if report.Outcome != OutcomeStopped {
				t.Errorf("expected stopped, got %s", report.Outcome)
			}
			if got := sink.got(); len(got) != tt.stopAt {
				t.Fatalf("expected exactly %d consumed, got %d", tt.stopAt, len(got))
			}
			if report.Consumed != int64(tt.stopAt) {
				t.Errorf("report consumed %d, want %d", report.Consumed, tt.stopAt)
			}
			stages := p.Stages()
			if stages[2].Err() != ErrStopRequested {
				t.Errorf("sink stage err = %v", stages[2].Err())
			}
		})
	}
}

func TestStopWakesBlockedExtractor(t *testing.T) {
	// Capacity 1 and a large source keep the extractor parked in Send.
	sink := &collectSink{stopAt: 2}
	p := newPipeline(FromSlice(seq(10_000)), sink, WithCapacity(1))

	report, err := run(t, context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Extracted >= 10_000 {
		t.Errorf("extractor should have been cut short, extracted %d", report.Extracted)
	}
	extractorErr := p.Stages()[0].Err()
	if extractorErr != nil && !stderrors.Is(extractorErr, boundedchan.ErrCancelled) {
		t.Errorf("extractor should end cancelled, got %v", extractorErr)
	}
	if extractorErr != nil && !stderrors.Is(extractorErr, ErrStopRequested) {
		t.Errorf("cancellation should carry the stop cause, got %v", extractorErr)
	}
}

func TestTransformFailure(t *testing.T) {
	boom := stderrors.New("bad frame")
	transform := func(_ context.Context, v int) (int, error) {
		if v == 4 {
			return 0, boom
		}
		return v, nil
	}
	sink := &collectSink{}
	p := New(FromSlice(seq(20)), transform, sink, WithLogger(logger.Nop()), WithCapacity(2))

	report, err := run(t, context.Background(), p)
	if !stderrors.Is(err, errors.StageFailed("", nil)) {
		t.Fatalf("expected STAGE_FAILED, got %v", err)
	}
	if !stderrors.Is(err, boom) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["stage"] != StageTransformer {
		t.Errorf("expected stage detail transformer, got %v", appErr.Details)
	}
	if report.Outcome != OutcomeFailed || report.Err != err || report.Error == "" {
		t.Errorf("unexpected report %+v", report)
	}
	if got := sink.got(); len(got) > 3 {
		t.Errorf("sink saw items past the failure: %v", got)
	}
}

func TestSinkPanicBecomesFailure(t *testing.T) {
	sink := SinkFunc[int](func(_ context.Context, v int) (Decision, error) {
		if v == 6 {
			panic("display gone")
		}
		return Continue, nil
	})
	p := newPipeline(FromSlice(seq(10)), sink)

	report, err := run(t, context.Background(), p)
	if errors.CodeOf(err) != errors.ErrCodeStageFailed {
		t.Fatalf("expected STAGE_FAILED, got %v", err)
	}
	if report.Outcome != OutcomeFailed || report.Consumed != 2 {
		t.Errorf("unexpected report %+v", report)
	}
}

type failingSource struct {
	*SliceSource[int]
	failAt int
	closed atomic.Bool
}

func (s *failingSource) Next(ctx context.Context) (int, bool, error) {
	v, ok, err := s.SliceSource.Next(ctx)
	if ok && v == s.failAt {
		return 0, false, stderrors.New("read error")
	}
	return v, ok, err
}

func (s *failingSource) Close() error {
	s.closed.Store(true)
	return nil
}

func TestSourceFailure(t *testing.T) {
	src := &failingSource{SliceSource: FromSlice(seq(10)), failAt: 5}
	p := newPipeline(src, &collectSink{})

	report, err := run(t, context.Background(), p)
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.ErrCodeStageFailed || appErr.Details["stage"] != StageExtractor {
		t.Fatalf("expected extractor STAGE_FAILED, got %v", err)
	}
	if report.Extracted != 4 {
		t.Errorf("expected 4 extracted before failure, got %d", report.Extracted)
	}
	if !src.closed.Load() {
		t.Error("source should be closed after the run")
	}
}

func TestCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumed atomic.Int32
	sink := SinkFunc[int](func(ctx context.Context, _ int) (Decision, error) {
		if consumed.Add(1) == 5 {
			cancel()
		}
		return Continue, nil
	})
	p := newPipeline(FromSlice(seq(100_000)), sink, WithCapacity(1))

	report, err := run(t, ctx, p)
	if !stderrors.Is(err, boundedchan.ErrCancelled) || !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected CANCELLED wrapping context.Canceled, got %v", err)
	}
	if report.Outcome != OutcomeCancelled {
		t.Errorf("expected cancelled, got %s", report.Outcome)
	}
	if report.Consumed >= 100_000 {
		t.Errorf("run should have been cut short, consumed %d", report.Consumed)
	}
}

func TestSinkObservingCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := SinkFunc[int](func(ctx context.Context, v int) (Decision, error) {
		if v == 2*3 {
			cancel()
			<-ctx.Done()
			return Continue, ctx.Err()
		}
		return Continue, nil
	})
	p := newPipeline(FromSlice(seq(10)), sink)

	report, _ := run(t, ctx, p)
	if report.Outcome != OutcomeCancelled {
		t.Errorf("a sink error caused by cancellation should not count as failure, got %s", report.Outcome)
	}
}

func TestSourceCountMismatch(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		declared  int
		maxItems  int
		want      int64
		shortRead bool
		expected  int
	}{
		{"short read", 4, 10, 0, 4, true, 10},
		{"source has more than declared", 5, 3, 0, 3, false, 3},
		{"unknown count reads to end", 7, -1, 0, 7, false, -1},
		{"max items caps declared", 10, 10, 4, 4, false, 4},
		{"max items caps unknown", 10, -1, 6, 6, false, 6},
		{"declared zero", 5, 0, 0, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &collectSink{}
			src := FromSlice(seq(tt.items)).Declare(tt.declared)
			p := newPipeline(src, sink, WithConfig(Config{Capacity: 2, MaxItems: tt.maxItems}))

			report, err := run(t, context.Background(), p)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if report.Outcome != OutcomeCompleted {
				t.Errorf("expected completed, got %s", report.Outcome)
			}
			if report.Consumed != tt.want {
				t.Errorf("consumed %d, want %d", report.Consumed, tt.want)
			}
			if report.ShortRead != tt.shortRead {
				t.Errorf("short read = %v, want %v", report.ShortRead, tt.shortRead)
			}
			if report.Expected != tt.expected {
				t.Errorf("expected = %d, want %d", report.Expected, tt.expected)
			}
		})
	}
}

func TestRunTwice(t *testing.T) {
	p := newPipeline(FromSlice(seq(3)), &collectSink{})
	if _, err := run(t, context.Background(), p); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	report, err := p.Run(context.Background())
	if report != nil || errors.CodeOf(err) != errors.ErrCodeAlreadyRun {
		t.Fatalf("expected ALREADY_RUN, got %v, %v", report, err)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		sink *collectSink
	}{
		{"completed", &collectSink{}},
		{"stopped", &collectSink{stopAt: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu    sync.Mutex
				trail []string
			)
			p := newPipeline(FromSlice(seq(5)), tt.sink, OnStateChange(func(from, to State) {
				mu.Lock()
				defer mu.Unlock()
				trail = append(trail, from.String()+">"+to.String())
			}))
			if p.State() != StateIdle {
				t.Fatalf("new pipeline should be idle, got %s", p.State())
			}
			run(t, context.Background(), p)

			mu.Lock()
			defer mu.Unlock()
			want := []string{"idle>running", "running>draining", "draining>done"}
			if !slices.Equal(trail, want) {
				t.Errorf("transitions %v, want %v", trail, want)
			}
		})
	}
}

func TestProgressDuringAndAfterRun(t *testing.T) {
	var p *Pipeline[int, int]
	var seen []Progress
	sink := SinkFunc[int](func(_ context.Context, _ int) (Decision, error) {
		seen = append(seen, p.Progress())
		return Continue, nil
	})
	p = newPipeline(FromSlice(seq(4)), sink, WithRunID("run-fixed"))

	before := p.Progress()
	if before.State != "idle" || before.Expected != -1 {
		t.Errorf("unexpected idle progress %+v", before)
	}

	report, err := run(t, context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID != "run-fixed" {
		t.Errorf("expected fixed run id, got %q", report.RunID)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(seen))
	}
	for i, pr := range seen {
		if pr.RunID != "run-fixed" || pr.Expected != 4 {
			t.Errorf("snapshot %d: %+v", i, pr)
		}
		if pr.Consumed != int64(i) {
			t.Errorf("snapshot %d: consumed %d", i, pr.Consumed)
		}
	}

	after := p.Progress()
	if after.State != "done" || after.Report == nil || after.Report.Consumed != 4 {
		t.Errorf("unexpected final progress %+v", after)
	}
}

func TestGeneratedRunID(t *testing.T) {
	p := newPipeline(FromSlice(seq(1)), &collectSink{})
	report, _ := run(t, context.Background(), p)
	if len(report.RunID) != 36 {
		t.Errorf("expected a UUID run id, got %q", report.RunID)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := observability.NewMetrics(mp.Meter("pipeline-test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	p := newPipeline(FromSlice(seq(6)), &collectSink{}, WithMetrics(metrics))
	if _, err := run(t, context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	if totals["pipeline.stage.items"] != 18 {
		t.Errorf("expected 18 stage items (6 per stage), got %d", totals["pipeline.stage.items"])
	}
	if totals["pipeline.runs"] != 1 {
		t.Errorf("expected 1 run, got %d", totals["pipeline.runs"])
	}
}

func TestCollaboratorHelpers(t *testing.T) {
	if Stop.String() != "stop" || Continue.String() != "continue" {
		t.Error("unexpected Decision strings")
	}
	states := map[State]string{StateIdle: "idle", StateRunning: "running", StateDraining: "draining", StateDone: "done", State(9): "unknown"}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d) = %q, want %q", s, s.String(), want)
		}
	}

	src := FromSlice([]string{"a"})
	if src.TotalCount() != 1 {
		t.Errorf("expected declared 1, got %d", src.TotalCount())
	}
	if v, ok, _ := src.Next(context.Background()); !ok || v != "a" {
		t.Errorf("unexpected first item %q %v", v, ok)
	}
	if _, ok, _ := src.Next(context.Background()); ok {
		t.Error("expected exhaustion")
	}

	out, err := TransformFunc(func(s string) int { return len(s) })(context.Background(), "abc")
	if err != nil || out != 3 {
		t.Errorf("TransformFunc = %d, %v", out, err)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Capacity != boundedchan.DefaultCapacity {
		t.Errorf("expected default capacity, got %d", cfg.Capacity)
	}
}
