package sse

// Broadcaster sends pre-encoded frames to every client whose ID matches a
// glob pattern such as "<run id>/*".
type Broadcaster interface {
	BroadcastToPattern(pattern string, data []byte)
}

// Publisher encodes run events and routes them by run id. Run code depends
// on this rather than on a concrete Hub.
type Publisher interface {
	Broadcaster
	Publish(runID, eventType string, v any) error
}

var _ Publisher = (*Hub)(nil)
