// Package pipeline runs a three-stage bounded pipeline:
//
//	Source -> [raw channel] -> Transform -> [derived channel] -> Sink
//
// Each stage runs on its own goroutine and the stages are joined by
// boundedchan.Channel buffers, so a slow consumer applies backpressure all
// the way to the source. Order is preserved end to end.
//
// A run ends in exactly one Outcome:
//
//   - Completed: the source was drained and every item reached the sink.
//     End-of-stream travels downstream by closing each channel.
//   - Stopped: the sink returned Stop. Both channels are cancelled so the
//     upstream stages unblock and exit.
//   - Cancelled: the caller's context was cancelled.
//   - Failed: a source, transform or sink returned an error or panicked.
//
// # Usage
//
//	p := pipeline.New(src, pipeline.TransformFunc(toGray), sink,
//	    pipeline.WithCapacity(10))
//	report, err := p.Run(ctx)
//
// A Pipeline runs once; a second Run returns an ALREADY_RUN error.
package pipeline
