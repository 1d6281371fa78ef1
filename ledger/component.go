package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/resilience"
)

// Component wraps Ledger and implements component.Component for lifecycle management.
type Component struct {
	cfg Config
	log *logger.Logger

	mu     sync.RWMutex
	ledger *Ledger
}

// ensure Component satisfies component.Component
var _ component.Component = (*Component)(nil)

// NewComponent creates a ledger component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{cfg: cfg, log: log}
}

// Ledger returns the open ledger, or nil if not started.
func (c *Component) Ledger() *Ledger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger
}

// Name returns the component name.
func (c *Component) Name() string { return "ledger" }

// Start opens the database and creates the schema, retrying transient failures.
func (c *Component) Start(ctx context.Context) error {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.cfg.OpenAttempts
	retry.InitialBackoff = c.cfg.OpenBackoff
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		c.log.Warn("ledger open failed, retrying", logger.Fields(
			"attempt", attempt, "backoff", backoff.String(), "error", err.Error()))
	}
	l, err := resilience.Retry(ctx, retry, func() (*Ledger, error) {
		return Open(ctx, c.cfg.DSN, c.log)
	})
	if err != nil {
		return fmt.Errorf("ledger start: %w", err)
	}
	c.mu.Lock()
	c.ledger = l
	c.mu.Unlock()
	return nil
}

// Stop closes the database.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger == nil {
		return nil
	}
	err := c.ledger.Close()
	c.ledger = nil
	return err
}

// Health pings the database.
func (c *Component) Health(ctx context.Context) component.Health {
	l := c.Ledger()
	if l == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "ledger not open"}
	}
	if err := l.Ping(ctx); err != nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Runs delegates to the open ledger.
func (c *Component) Runs(ctx context.Context, limit int) ([]Run, error) {
	l := c.Ledger()
	if l == nil {
		return nil, errors.Unavailable("ledger")
	}
	return l.Runs(ctx, limit)
}

// RunSummary delegates to the open ledger.
func (c *Component) RunSummary(ctx context.Context, runID string) (*Run, error) {
	l := c.Ledger()
	if l == nil {
		return nil, errors.Unavailable("ledger")
	}
	return l.RunSummary(ctx, runID)
}

// Frames delegates to the open ledger.
func (c *Component) Frames(ctx context.Context, runID string) ([]FrameRecord, error) {
	l := c.Ledger()
	if l == nil {
		return nil, errors.Unavailable("ledger")
	}
	return l.Frames(ctx, runID)
}
