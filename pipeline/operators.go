package pipeline

import (
	"context"
)

// Tap calls fn as a side-effect for each item src yields, then passes the
// item through unchanged. The declared count is kept. An error from fn ends
// the stream with that error.
func Tap[T any](src Source[T], fn func(context.Context, T) error) Source[T] {
	return &tapSource[T]{source: src, fn: fn}
}

type tapSource[T any] struct {
	source Source[T]
	fn     func(context.Context, T) error
}

func (s *tapSource[T]) TotalCount() int { return s.source.TotalCount() }

func (s *tapSource[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	val, ok, err := s.source.Next(ctx)
	if err != nil || !ok {
		return val, ok, err
	}
	if err := s.fn(ctx, val); err != nil {
		var zero T
		return zero, false, err
	}
	return val, true, nil
}

func (s *tapSource[T]) Close() error { return s.source.Close() }

// FanOut returns a Sink that forwards each item to every sink in order. It
// stops at the first error and returns Stop when any sink asked to stop.
func FanOut[D any](sinks ...Sink[D]) Sink[D] {
	return SinkFunc[D](func(ctx context.Context, item D) (Decision, error) {
		result := Continue
		for _, s := range sinks {
			decision, err := s.Consume(ctx, item)
			if err != nil {
				return Continue, err
			}
			if decision == Stop {
				result = Stop
			}
		}
		return result, nil
	})
}
