package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), ":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)
	runID := uuid.NewString()

	if err := l.StartRun(ctx, runID, "synthetic", 3); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	run, err := l.RunSummary(ctx, runID)
	if err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	if run.Outcome != OutcomeRunning || run.FinishedAt != nil || run.Expected != 3 {
		t.Errorf("unexpected running row %+v", run)
	}

	frames := []frame.Frame{frame.Generate(1, 4, 4, 1), frame.Generate(2, 4, 4, 1)}
	for _, f := range frames {
		if err := l.Record(ctx, runID, f); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	started := time.Now()
	report := &pipeline.Report{
		RunID: runID, Outcome: pipeline.OutcomeStopped, Expected: 3,
		Extracted: 3, Transformed: 2, Consumed: 2,
		StartedAt: started, Duration: 1500 * time.Millisecond,
	}
	if err := l.FinishRun(ctx, report); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err = l.RunSummary(ctx, runID)
	if err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	if run.Outcome != "stopped" || run.Consumed != 2 || run.Frames != 2 || run.Duration != 1500*time.Millisecond {
		t.Errorf("unexpected finished row %+v", run)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	recs, err := l.Frames(ctx, runID)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.Seq != i+1 || rec.Bytes != 16 || rec.Checksum != Checksum(frames[i]) {
			t.Errorf("frame %d: %+v", i, rec)
		}
	}
}

func TestChecksum(t *testing.T) {
	a, b := frame.Generate(1, 8, 8, 3), frame.Generate(2, 8, 8, 3)
	if Checksum(a) != Checksum(frame.Generate(1, 8, 8, 3)) {
		t.Error("checksum should be stable")
	}
	if Checksum(a) == Checksum(b) {
		t.Error("different frames should hash differently")
	}
	if len(Checksum(a)) != 16 {
		t.Errorf("checksum %q should be 16 hex digits", Checksum(a))
	}
}

func TestLookupErrors(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)

	tests := []struct {
		name  string
		runID string
		code  errors.ErrorCode
	}{
		{"empty", "", errors.ErrCodeMissingField},
		{"not a uuid", "run-1", errors.ErrCodeInvalidFormat},
		{"unknown", uuid.NewString(), errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.RunSummary(ctx, tt.runID); errors.CodeOf(err) != tt.code {
				t.Errorf("RunSummary: got %v, want %s", err, tt.code)
			}
		})
	}

	if err := l.FinishRun(ctx, &pipeline.Report{RunID: uuid.NewString()}); errors.CodeOf(err) != errors.ErrCodeNotFound {
		t.Errorf("FinishRun unknown run: got %v", err)
	}
	if err := l.StartRun(ctx, "nope", "raw", 1); errors.CodeOf(err) != errors.ErrCodeInvalidFormat {
		t.Errorf("StartRun bad id: got %v", err)
	}
}

func TestDuplicateFrameFails(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)
	runID := uuid.NewString()
	l.StartRun(ctx, runID, "synthetic", 1)

	f := frame.Generate(1, 2, 2, 1)
	if err := l.Record(ctx, runID, f); err != nil {
		t.Fatal(err)
	}
	if err := l.Record(ctx, runID, f); errors.CodeOf(err) != errors.ErrCodeDatabaseError {
		t.Errorf("expected DATABASE_ERROR for duplicate seq, got %v", err)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)
	first, second := uuid.NewString(), uuid.NewString()
	l.StartRun(ctx, first, "synthetic", 1)
	time.Sleep(2 * time.Millisecond)
	l.StartRun(ctx, second, "synthetic", 1)

	runs, err := l.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Errorf("unexpected order %v", runs)
	}
}

func TestSinkInPipeline(t *testing.T) {
	ctx := context.Background()
	l := openTest(t)
	runID := uuid.NewString()

	src := frame.NewSynthetic(4, 4, 3, 5)
	if err := l.StartRun(ctx, runID, "synthetic", src.TotalCount()); err != nil {
		t.Fatal(err)
	}
	p := pipeline.New[frame.Frame, frame.Frame](src, frame.Grayscale, l.Sink(runID),
		pipeline.WithRunID(runID), pipeline.WithLogger(logger.Nop()))
	report, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := l.FinishRun(ctx, report); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := l.RunSummary(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Outcome != "completed" || run.Frames != 5 || run.Consumed != 5 {
		t.Errorf("unexpected run %+v", run)
	}
	recs, _ := l.Frames(ctx, runID)
	for _, rec := range recs {
		if rec.Channels != 1 {
			t.Errorf("frame %d recorded with %d channels, want gray", rec.Seq, rec.Channels)
		}
	}
}

func TestComponent(t *testing.T) {
	ctx := context.Background()
	c := NewComponent(Config{Enabled: true, DSN: ":memory:"}, logger.Nop())

	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Ledger() == nil {
		t.Fatal("expected an open ledger")
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy || h.Name != "ledger" {
		t.Errorf("unexpected health %+v", h)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Ledger() != nil {
		t.Error("expected ledger to be released on stop")
	}
}

func TestComponentStartFailsOnUnopenableDSN(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "missing", "runs.db")
	c := NewComponent(Config{Enabled: true, DSN: dsn, OpenAttempts: 2, OpenBackoff: time.Millisecond}, logger.Nop())
	err := c.Start(context.Background())
	if errors.CodeOf(err) != errors.ErrCodeDatabaseError {
		t.Fatalf("Start: got %v, want DATABASE_ERROR", err)
	}
	if c.Ledger() != nil {
		t.Error("expected no ledger after a failed start")
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"wrapped busy", fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"plain", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBusy(tt.err); got != tt.want {
				t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.DSN != DefaultDSN || c.OpenAttempts != 3 || c.OpenBackoff != 200*time.Millisecond {
		t.Errorf("unexpected defaults %+v", c)
	}

	tests := []struct {
		name string
		cfg  Config
		code errors.ErrorCode
	}{
		{"disabled without dsn", Config{}, ""},
		{"enabled without dsn", Config{Enabled: true}, errors.ErrCodeMissingField},
		{"negative attempts", Config{DSN: ":memory:", OpenAttempts: -1}, errors.ErrCodeInvalidInput},
		{"negative backoff", Config{DSN: ":memory:", OpenBackoff: -time.Second}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.CodeOf(tt.cfg.Validate()); got != tt.code {
				t.Errorf("Validate() code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestComponentQueriesBeforeStart(t *testing.T) {
	c := NewComponent(Config{DSN: ":memory:"}, logger.Nop())
	if _, err := c.Runs(context.Background(), 5); errors.CodeOf(err) != errors.ErrCodeUnavailable {
		t.Errorf("Runs before start: got %v, want UNAVAILABLE", err)
	}
	if _, err := c.RunSummary(context.Background(), uuid.NewString()); errors.CodeOf(err) != errors.ErrCodeUnavailable {
		t.Errorf("RunSummary before start: got %v, want UNAVAILABLE", err)
	}
}
