// Package boundedchan provides a fixed-capacity FIFO ring buffer shared by
// producer and consumer goroutines.
//
// A Channel holds at most Cap() items. Send blocks while the buffer is full
// and Receive blocks while it is empty. Index bookkeeping happens under a
// single mutex; two counting semaphores track free slots and filled slots, so
// a blocked goroutine is only woken by the event it waits for.
//
// Termination is explicit state on the channel rather than a sentinel item:
//
//   - Close marks end-of-stream. Buffered items are still delivered, after
//     which Receive returns ok == false on every call. Send fails with
//     ErrClosed.
//   - Cancel aborts both directions. Pending and future Send and Receive
//     calls fail with ErrCancelled wrapping the cause.
//
// Both are idempotent.
package boundedchan
