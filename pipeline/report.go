package pipeline

import (
	"time"

	"github.com/kbukum/framepipe/boundedchan"
)

// Report summarizes a finished run.
type Report struct {
	RunID   string  `json:"run_id"`
	Outcome Outcome `json:"outcome"`
	// Expected is the number of items the extractor aimed for, or -1 if unknown.
	Expected    int   `json:"expected"`
	Extracted   int64 `json:"extracted"`
	Transformed int64 `json:"transformed"`
	Consumed    int64 `json:"consumed"`
	// ShortRead is set when the source ended before Expected items.
	ShortRead bool              `json:"short_read"`
	Raw       boundedchan.Stats `json:"raw"`
	Derived   boundedchan.Stats `json:"derived"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
	Err       error             `json:"-"`
}

// Progress is a live view of a pipeline, safe to take while it runs.
type Progress struct {
	RunID       string            `json:"run_id,omitempty"`
	State       string            `json:"state"`
	Expected    int               `json:"expected"`
	Extracted   int64             `json:"extracted"`
	Transformed int64             `json:"transformed"`
	Consumed    int64             `json:"consumed"`
	Raw         boundedchan.Stats `json:"raw"`
	Derived     boundedchan.Stats `json:"derived"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	Report      *Report           `json:"report,omitempty"`
}

// Reporter is implemented by pipelines of any item type.
type Reporter interface {
	Progress() Progress
}
