package livedata

import (
	"context"
	"sync"
)

// Result is the outcome of a Call: a value or an error, never both.
type Result[T any] struct {
	Data T
	Err  error
}

// Call is a cancellable, single-shot asynchronous operation handle.
//
// A Call wraps a function of the session context and offers two consumption
// modes that yield identical results for identical inputs:
//   - Execute: run synchronously on the calling goroutine and block.
//   - Enqueue: run on a new goroutine and deliver the result to a callback.
//
// Cancel is cooperative: cancelling before the run starts suppresses the
// callback (and fails Execute with context.Canceled); cancelling after
// completion is a no-op. An in-flight remote call is not forcibly aborted
// beyond the context cancellation it observes.
//
// A Call does not memoize: running it twice duplicates any side effects of
// the wrapped function. Callers are expected to consume a handle once.
type Call[T any] struct {
	runnable func(ctx context.Context) Result[T]

	mu       sync.Mutex
	ctx      context.Context
	cancelFn context.CancelFunc
	canceled bool
}

// NewCall wraps runnable in a handle bound to parent. The parent context is
// typically the owning session's scope, so disconnecting the session cancels
// outstanding calls.
func NewCall[T any](parent context.Context, runnable func(ctx context.Context) Result[T]) *Call[T] {
	ctx, cancel := context.WithCancel(parent)
	return &Call[T]{
		runnable: runnable,
		ctx:      ctx,
		cancelFn: cancel,
	}
}

// Execute runs the call on the calling goroutine and blocks until it
// completes. A cancelled call fails immediately with the context error.
func (c *Call[T]) Execute() Result[T] {
	c.mu.Lock()
	if c.canceled {
		c.mu.Unlock()
		var zero T
		return Result[T]{Data: zero, Err: c.ctx.Err()}
	}
	ctx := c.ctx
	c.mu.Unlock()

	return c.runnable(ctx)
}

// Enqueue runs the call on a new goroutine and invokes callback with the
// result. If the call was cancelled before the run starts, callback never
// fires. A nil callback discards the result.
func (c *Call[T]) Enqueue(callback func(Result[T])) {
	go func() {
		c.mu.Lock()
		if c.canceled {
			c.mu.Unlock()
			return
		}
		ctx := c.ctx
		c.mu.Unlock()

		res := c.runnable(ctx)
		if callback != nil {
			c.mu.Lock()
			canceled := c.canceled
			c.mu.Unlock()
			if !canceled {
				callback(res)
			}
		}
	}()
}

// Cancel marks the call cancelled and cancels its context. Cancelling a
// completed call has no effect on the already-delivered result.
func (c *Call[T]) Cancel() {
	c.mu.Lock()
	c.canceled = true
	c.mu.Unlock()
	c.cancelFn()
}
