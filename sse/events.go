package sse

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kbukum/framepipe/pipeline"
)

// Event types written on the "event:" line.
const (
	// EventTypeConnected is sent once when a client subscribes.
	EventTypeConnected = "connected"
	// EventTypeState is sent on every pipeline state transition.
	EventTypeState = "state"
	// EventTypeReport carries the final report of a run.
	EventTypeReport = "report"
)

// AllRuns is the topic of clients that follow every run.
const AllRuns = "all"

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
}

// StateEvent describes one lifecycle transition of a run.
type StateEvent struct {
	RunID    string            `json:"run_id"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Progress pipeline.Progress `json:"progress"`
}

// Encode renders v as one SSE frame of the given type.
func Encode(eventType string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\ndata: %s\n\n", eventType, data)
	return buf.Bytes(), nil
}
