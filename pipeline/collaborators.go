package pipeline

import (
	"context"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// Source is a finite ordered Iterator that declares its length up front.
// TotalCount returns a negative number when the length is unknown. The count
// is a hint: the Extractor stops at TotalCount items or at end-of-stream,
// whichever comes first.
type Source[R any] interface {
	Iterator[R]
	TotalCount() int
}

// Transform maps a raw item to a derived item. It must not retain in.
type Transform[R, D any] func(ctx context.Context, in R) (D, error)

// TransformFunc adapts an infallible function to a Transform.
func TransformFunc[R, D any](fn func(R) D) Transform[R, D] {
	return func(_ context.Context, in R) (D, error) {
		return fn(in), nil
	}
}

// Decision is a sink's verdict after consuming an item.
type Decision int

const (
	// Continue asks for the next item.
	Continue Decision = iota
	// Stop ends the run early. The item just consumed still counts.
	Stop
)

func (d Decision) String() string {
	if d == Stop {
		return "stop"
	}
	return "continue"
}

// Sink consumes derived items for their effect.
type Sink[D any] interface {
	Consume(ctx context.Context, item D) (Decision, error)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[D any] func(ctx context.Context, item D) (Decision, error)

// Consume calls f.
func (f SinkFunc[D]) Consume(ctx context.Context, item D) (Decision, error) {
	return f(ctx, item)
}

// SliceSource is a Source over an in-memory slice.
type SliceSource[T any] struct {
	items    []T
	declared int
	index    int
}

// FromSlice returns a Source that yields items in order and declares len(items).
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items, declared: len(items)}
}

// Declare overrides the declared total, which lets a source claim more or
// fewer items than it holds.
func (s *SliceSource[T]) Declare(n int) *SliceSource[T] {
	s.declared = n
	return s
}

func (s *SliceSource[T]) TotalCount() int { return s.declared }

func (s *SliceSource[T]) Next(_ context.Context) (T, bool, error) {
	if s.index >= len(s.items) {
		var zero T
		return zero, false, nil
	}
	val := s.items[s.index]
	s.index++
	return val, true, nil
}

func (s *SliceSource[T]) Close() error { return nil }
