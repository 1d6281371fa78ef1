package sse

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
)

// clientBuffer is the number of frames a slow client may fall behind.
const clientBuffer = 64

// Client is one connected subscriber. Its ID has the form "<topic>/<suffix>".
type Client struct {
	id     string
	events chan []byte
}

// NewClient creates a client with a buffered event channel.
func NewClient(id string) *Client {
	return &Client{id: id, events: make(chan []byte, clientBuffer)}
}

// ID returns the client's identifier.
func (c *Client) ID() string { return c.id }

// Events returns the channel the client reads frames from.
func (c *Client) Events() <-chan []byte { return c.events }

// Send queues data for the client. It reports false when the client is full.
func (c *Client) Send(data []byte) bool {
	select {
	case c.events <- data:
		return true
	default:
		return false
	}
}

// Close closes the client's event channel.
func (c *Client) Close() { close(c.events) }

// Message is a frame routed to clients whose ID matches Pattern.
type Message struct {
	Pattern string
	Data    []byte
}

// Hub manages client subscriptions and routes messages to them.
type Hub struct {
	log *logger.Logger

	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub. A nil log uses the registered "sse" logger.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Get("sse")
	} else {
		log = log.WithComponent("sse")
	}
	return &Hub{
		log:        log,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", logger.Fields("client_id", client.id, "clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", logger.Fields("client_id", client.id, "clients", n))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop closes every client and makes Run return. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Done is closed once Stop has been called.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
}

// Register adds a client. It reports false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern queues data for every client whose ID matches the glob pattern.
func (h *Hub) BroadcastToPattern(pattern string, data []byte) {
	select {
	case h.broadcast <- &Message{Pattern: pattern, Data: data}:
	case <-h.done:
	}
}

// Publish encodes v and sends it to the run's subscribers and to AllRuns
// subscribers. A run id must not contain a path separator or glob
// metacharacters.
func (h *Hub) Publish(runID, eventType string, v any) error {
	if runID == "" || strings.ContainsAny(runID, `/*?[\`) {
		return errors.InvalidFormat("run_id", "a run id without '/' or glob metacharacters")
	}
	data, err := Encode(eventType, v)
	if err != nil {
		return err
	}
	if runID != AllRuns {
		h.BroadcastToPattern(runID+"/*", data)
	}
	h.BroadcastToPattern(AllRuns+"/*", data)
	return nil
}

func (h *Hub) deliver(msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.clients {
		matched, err := filepath.Match(msg.Pattern, id)
		if err != nil {
			h.log.Error("bad broadcast pattern", logger.Fields("pattern", msg.Pattern, "client_id", id, logger.FieldError, err.Error()))
			continue
		}
		if matched && !client.Send(msg.Data) {
			h.log.Warn("client too slow, dropping event", logger.Fields("client_id", id))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client returns a client by ID, or nil.
func (h *Hub) Client(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}
