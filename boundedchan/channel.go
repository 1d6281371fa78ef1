package boundedchan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kbukum/framepipe/errors"
)

// DefaultCapacity is the buffer size used when a non-positive capacity is given.
const DefaultCapacity = 10

// Sentinels for errors.Is. Errors returned by a Channel carry the same codes
// with channel name and cause attached.
var (
	ErrClosed    = errors.ChannelClosed("")
	ErrCancelled = errors.Cancelled(nil)
)

// Stats is a point-in-time snapshot of channel activity.
type Stats struct {
	Sent            int64 `json:"sent"`
	Received        int64 `json:"received"`
	BlockedSends    int64 `json:"blocked_sends"`
	BlockedReceives int64 `json:"blocked_receives"`
	MaxOccupancy    int   `json:"max_occupancy"`
	Len             int   `json:"len"`
	Cap             int   `json:"cap"`
}

// Channel is a bounded FIFO buffer of T. The zero value is not usable; call New.
type Channel[T any] struct {
	name string

	mu           sync.Mutex
	items        []T
	writeIdx     int
	readIdx      int
	count        int
	maxOccupancy int

	// empty holds one token per free slot, full one token per buffered item.
	empty chan struct{}
	full  chan struct{}

	closed      chan struct{}
	closeOnce   sync.Once
	cancelled   chan struct{}
	cancelOnce  sync.Once
	cancelCause error

	sent            atomic.Int64
	received        atomic.Int64
	blockedSends    atomic.Int64
	blockedReceives atomic.Int64
}

// New creates a channel holding at most capacity items. Capacities below one
// fall back to DefaultCapacity.
func New[T any](name string, capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &Channel[T]{
		name:      name,
		items:     make([]T, capacity),
		empty:     make(chan struct{}, capacity),
		full:      make(chan struct{}, capacity),
		closed:    make(chan struct{}),
		cancelled: make(chan struct{}),
	}
	for range capacity {
		c.empty <- struct{}{}
	}
	return c
}

// Name returns the name given to New.
func (c *Channel[T]) Name() string { return c.name }

// Cap returns the fixed capacity.
func (c *Channel[T]) Cap() int { return len(c.items) }

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool { return isDone(c.closed) }

// Cancelled reports whether Cancel has been called.
func (c *Channel[T]) Cancelled() bool { return isDone(c.cancelled) }

// Send blocks until a slot is free and appends item. It returns ErrClosed
// after Close, ErrCancelled after Cancel or when ctx is done. On error the
// item is not buffered.
func (c *Channel[T]) Send(ctx context.Context, item T) error {
	if err := c.sendGate(); err != nil {
		return err
	}

	select {
	case <-c.empty:
	default:
		c.blockedSends.Add(1)
		select {
		case <-c.empty:
		case <-c.cancelled:
			return c.cancelErr()
		case <-c.closed:
			return c.closedErr()
		case <-ctx.Done():
			return errors.Cancelled(ctx.Err()).WithDetail("channel", c.name)
		}
	}

	c.mu.Lock()
	// Close or Cancel may have won while we waited for the slot.
	if err := c.sendGate(); err != nil {
		c.mu.Unlock()
		c.empty <- struct{}{}
		return err
	}
	c.items[c.writeIdx] = item
	c.writeIdx = (c.writeIdx + 1) % len(c.items)
	c.count++
	if c.count > c.maxOccupancy {
		c.maxOccupancy = c.count
	}
	// Released under the lock so Close, which also takes the lock, never
	// observes an item that has no full token yet.
	c.full <- struct{}{}
	c.mu.Unlock()

	c.sent.Add(1)
	return nil
}

// Receive blocks until an item is available and returns it with ok == true.
// Once the channel is closed and drained it returns the zero value with
// ok == false and a nil error, on this and every later call. It returns
// ErrCancelled after Cancel or when ctx is done.
func (c *Channel[T]) Receive(ctx context.Context) (item T, ok bool, err error) {
	if c.Cancelled() {
		return item, false, c.cancelErr()
	}

	select {
	case <-c.full:
	default:
		c.blockedReceives.Add(1)
		select {
		case <-c.full:
		case <-c.cancelled:
			return item, false, c.cancelErr()
		case <-c.closed:
			// Closed: drain whatever is still buffered before reporting end-of-stream.
			select {
			case <-c.full:
			default:
				return item, false, nil
			}
		case <-ctx.Done():
			return item, false, errors.Cancelled(ctx.Err()).WithDetail("channel", c.name)
		}
	}

	c.mu.Lock()
	var zero T
	item = c.items[c.readIdx]
	c.items[c.readIdx] = zero
	c.readIdx = (c.readIdx + 1) % len(c.items)
	c.count--
	c.mu.Unlock()
	c.empty <- struct{}{}

	c.received.Add(1)
	return item, true, nil
}

// Close marks end-of-stream. Buffered items remain receivable. Idempotent.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		c.mu.Unlock()
	})
}

// Cancel aborts the channel with cause. Blocked and future Send and Receive
// calls return ErrCancelled wrapping cause. Buffered items are discarded from
// the consumer's point of view. Idempotent; the first cause wins.
func (c *Channel[T]) Cancel(cause error) {
	c.cancelOnce.Do(func() {
		c.cancelCause = cause
		close(c.cancelled)
	})
}

// Cause returns the cause passed to the first Cancel call, or nil.
// cancelCause is written before cancelled is closed and never again.
func (c *Channel[T]) Cause() error {
	if !c.Cancelled() {
		return nil
	}
	return c.cancelCause
}

// Stats returns a snapshot of the channel counters.
func (c *Channel[T]) Stats() Stats {
	c.mu.Lock()
	length, maxOcc := c.count, c.maxOccupancy
	c.mu.Unlock()
	return Stats{
		Sent:            c.sent.Load(),
		Received:        c.received.Load(),
		BlockedSends:    c.blockedSends.Load(),
		BlockedReceives: c.blockedReceives.Load(),
		MaxOccupancy:    maxOcc,
		Len:             length,
		Cap:             len(c.items),
	}
}

// sendGate reports why a Send may not proceed. Cancellation takes precedence
// over close.
func (c *Channel[T]) sendGate() error {
	if c.Cancelled() {
		return c.cancelErr()
	}
	if c.Closed() {
		return c.closedErr()
	}
	return nil
}

func (c *Channel[T]) closedErr() error {
	return errors.ChannelClosed(c.name)
}

func (c *Channel[T]) cancelErr() error {
	return errors.Cancelled(c.Cause()).WithDetail("channel", c.name)
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
