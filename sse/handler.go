package sse

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/framepipe/logger"
)

// KeepAliveInterval is how often an idle stream gets a comment line.
var KeepAliveInterval = 30 * time.Second

// ServeSSE subscribes the request to topic (a run ID or AllRuns) and streams
// events until the client goes away or the hub stops.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, topic string, log *logger.Logger) {
	if log == nil {
		log = logger.Get("sse")
	}
	if topic == "" {
		topic = AllRuns
	}
	clientID := topic + "/" + uuid.NewString()

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported", logger.Fields("client_id", clientID))
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not clear write deadline", logger.Fields("client_id", clientID, logger.FieldError, err.Error()))
	}

	client := NewClient(clientID)
	if !hub.Register(client) {
		http.Error(w, "event hub stopped", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if hello, err := Encode(EventTypeConnected, ConnectedEvent{ClientID: clientID, Topic: topic}); err == nil {
		_, _ = w.Write(hello)
	}
	flusher.Flush()
	log.Debug("client connected", logger.Fields("client_id", clientID, "remote_addr", r.RemoteAddr))

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-client.Events():
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
