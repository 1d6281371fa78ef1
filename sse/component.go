package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/logger"
)

// Component runs a Hub under the component registry.
type Component struct {
	hub     *Hub
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a component with a fresh Hub.
func NewComponent(log *logger.Logger) *Component {
	return &Component{hub: NewHub(log)}
}

// Hub returns the hub for publishing and serving.
func (c *Component) Hub() *Hub { return c.hub }

// Name returns the component name.
func (c *Component) Name() string { return "events" }

// Start launches the hub's event loop.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()
	return nil
}

// Stop disconnects every client and waits for the loop to exit.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub.Stop()
	c.wg.Wait()
	return nil
}

// Health reports the number of connected clients.
func (c *Component) Health(_ context.Context) component.Health {
	select {
	case <-c.hub.Done():
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "hub stopped"}
	default:
	}
	return component.Health{
		Name:    c.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d clients connected", c.hub.ClientCount()),
	}
}
