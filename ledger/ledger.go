package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/observability"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/resilience"
	"github.com/kbukum/framepipe/validation"
)

const driverName = "sqlite3"

// OutcomeRunning marks a run that has not finished yet.
const OutcomeRunning = "running"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		expected    INTEGER NOT NULL,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		outcome     TEXT NOT NULL DEFAULT 'running',
		extracted   INTEGER NOT NULL DEFAULT 0,
		transformed INTEGER NOT NULL DEFAULT 0,
		consumed    INTEGER NOT NULL DEFAULT 0,
		short_read  INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS frames (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		seq         INTEGER NOT NULL,
		width       INTEGER NOT NULL,
		height      INTEGER NOT NULL,
		channels    INTEGER NOT NULL,
		bytes       INTEGER NOT NULL,
		checksum    TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// Run is one row of the runs table plus its recorded frame count.
type Run struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	Expected    int           `json:"expected"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Outcome     string        `json:"outcome"`
	Extracted   int64         `json:"extracted"`
	Transformed int64         `json:"transformed"`
	Consumed    int64         `json:"consumed"`
	ShortRead   bool          `json:"short_read"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Frames      int64         `json:"frames"`
}

// FrameRecord is one row of the frames table.
type FrameRecord struct {
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Channels   int       `json:"channels"`
	Bytes      int       `json:"bytes"`
	Checksum   string    `json:"checksum"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Checksum returns the hex xxhash64 of a frame's pixels.
func Checksum(f frame.Frame) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(f.Pix))
}

// Ledger is a SQLite-backed store of runs and frames.
type Ledger struct {
	db    *sql.DB
	log   *logger.Logger
	retry resilience.RetryConfig
}

// Open connects to dsn and creates the tables if needed.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.DatabaseError(err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.DatabaseError(err).WithDetail("operation", "migrate")
		}
	}
	l := &Ledger{db: db, log: log.WithComponent("ledger")}
	l.retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         0.1,
		RetryIf:        IsBusy,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			l.log.Warn("database busy, retrying", logger.Fields("attempt", attempt, "backoff", backoff.String(), "error", err.Error()))
		},
	}
	return l, nil
}

// IsBusy reports whether err is SQLite's SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping checks the connection.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// StartRun inserts a run row in the running state.
func (l *Ledger) StartRun(ctx context.Context, runID, source string, expected int) error {
	if _, err := validation.ValidateUUID("run_id", runID); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, expected, started_at, outcome) VALUES (?, ?, ?, ?, ?)`,
		runID, source, expected, time.Now().UnixNano(), OutcomeRunning)
	if err != nil {
		return errors.DatabaseError(err).WithDetail("run_id", runID)
	}
	l.log.Debug("run recorded", logger.Fields(logger.FieldRunID, runID, logger.FieldTotal, expected))
	return nil
}

// Record inserts one frame of a run.
func (l *Ledger) Record(ctx context.Context, runID string, f frame.Frame) error {
	ctx, span := observability.StartSpan(ctx, observability.SpanLedgerWrite, trace.WithAttributes(
		attribute.String(observability.AttrRunID, runID),
		attribute.Int("frame.seq", f.Seq),
	))
	defer span.End()

	sum := Checksum(f)
	err := resilience.RetryFunc(ctx, l.retry, func() error {
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO frames (run_id, seq, width, height, channels, bytes, checksum, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, f.Seq, f.Width, f.Height, f.Channels, len(f.Pix), sum, time.Now().UnixNano())
		return err
	})
	if err != nil {
		appErr := errors.DatabaseError(err).WithDetails(map[string]any{"run_id": runID, "seq": f.Seq})
		observability.SetSpanError(ctx, appErr)
		return appErr
	}
	return nil
}

// FinishRun stores the final counters of a run from its report.
func (l *Ledger) FinishRun(ctx context.Context, report *pipeline.Report) error {
	if report == nil {
		return errors.MissingField("report")
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, extracted = ?, transformed = ?, consumed = ?,
		 short_read = ?, duration_ms = ?, error = ? WHERE id = ?`,
		report.StartedAt.Add(report.Duration).UnixNano(), string(report.Outcome),
		report.Extracted, report.Transformed, report.Consumed,
		report.ShortRead, report.Duration.Milliseconds(), report.Error, report.RunID)
	if err != nil {
		return errors.DatabaseError(err).WithDetail("run_id", report.RunID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run", report.RunID)
	}
	l.log.Debug("run finished", logger.Fields(
		logger.FieldRunID, report.RunID,
		logger.FieldOutcome, string(report.Outcome),
	))
	return nil
}

const runColumns = `r.id, r.source, r.expected, r.started_at, r.finished_at, r.outcome,
	r.extracted, r.transformed, r.consumed, r.short_read, r.duration_ms, r.error,
	(SELECT COUNT(*) FROM frames f WHERE f.run_id = r.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r         Run
		started   int64
		finished  sql.NullInt64
		durationM int64
	)
	err := row.Scan(&r.ID, &r.Source, &r.Expected, &started, &finished, &r.Outcome,
		&r.Extracted, &r.Transformed, &r.Consumed, &r.ShortRead, &durationM, &r.Error, &r.Frames)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		r.FinishedAt = &t
	}
	r.Duration = time.Duration(durationM) * time.Millisecond
	return r, nil
}

// RunSummary returns one run.
func (l *Ledger) RunSummary(ctx context.Context, runID string) (*Run, error) {
	if _, err := validation.ValidateUUID("run_id", runID); err != nil {
		return nil, err
	}
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	r, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run", runID)
	}
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return &r, nil
}

// Runs returns the most recent runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.DatabaseError(err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return runs, nil
}

// Frames returns the frames recorded for a run in display order.
func (l *Ledger) Frames(ctx context.Context, runID string) ([]FrameRecord, error) {
	if _, err := validation.ValidateUUID("run_id", runID); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, seq, width, height, channels, bytes, checksum, recorded_at
		 FROM frames WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	defer rows.Close()

	var out []FrameRecord
	for rows.Next() {
		var (
			rec      FrameRecord
			recorded int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Width, &rec.Height, &rec.Channels,
			&rec.Bytes, &rec.Checksum, &recorded); err != nil {
			return nil, errors.DatabaseError(err)
		}
		rec.RecordedAt = time.Unix(0, recorded)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError(err)
	}
	return out, nil
}

// Sink returns a pipeline sink that records every frame under runID.
func (l *Ledger) Sink(runID string) pipeline.Sink[frame.Frame] {
	return pipeline.SinkFunc[frame.Frame](func(ctx context.Context, f frame.Frame) (pipeline.Decision, error) {
		return pipeline.Continue, l.Record(ctx, runID, f)
	})
}
