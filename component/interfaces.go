package component

import (
	"context"
	"sync/atomic"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component represents a lifecycle-managed infrastructure component.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start initializes and starts the component.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Overall folds component health into one status: unhealthy if any
// component is unhealthy, degraded if any is degraded, healthy otherwise.
func Overall(results []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range results {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Func is a Component built from plain functions. A nil Start or Stop is a
// no-op. It reports healthy once started.
type Func struct {
	ComponentName string
	OnStart       func(ctx context.Context) error
	OnStop        func(ctx context.Context) error
	started       atomic.Bool
}

func (f *Func) Name() string { return f.ComponentName }

func (f *Func) Start(ctx context.Context) error {
	if f.OnStart != nil {
		if err := f.OnStart(ctx); err != nil {
			return err
		}
	}
	f.started.Store(true)
	return nil
}

func (f *Func) Stop(ctx context.Context) error {
	f.started.Store(false)
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

func (f *Func) Health(context.Context) Health {
	if !f.started.Load() {
		return Health{Name: f.ComponentName, Status: StatusUnhealthy, Message: "not started"}
	}
	return Health{Name: f.ComponentName, Status: StatusHealthy}
}
