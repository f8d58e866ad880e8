package picsart

import (
	"context"
	"errors"

	"github.com/alextanhongpin/core/sync/promise"

	"github.com/me/creativeapis/pkg/apierr"
	"github.com/me/creativeapis/pkg/result"
)

// Call is a deferred API call. Nothing is validated or sent until it is
// run with Do, Run or Start. A Call may be run more than once; each run
// issues new requests.
type Call[T any] struct {
	op string
	fn func(ctx context.Context) (T, error)
}

func newCall[T any](op string, fn func(ctx context.Context) (T, error)) *Call[T] {
	return &Call[T]{op: op, fn: fn}
}

// Name returns the operation name, e.g. "removeBackground".
func (c *Call[T]) Name() string {
	return c.op
}

// Do runs the call on the current goroutine. A non-nil error is always an
// *apierr.Error.
func (c *Call[T]) Do(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, apierr.FromTransport(c.op, err)
	}
	v, err := c.fn(ctx)
	if err != nil {
		return zero, classify(ctx, c.op, err)
	}
	return v, nil
}

// Run is Do returning a result.Result.
func (c *Call[T]) Run(ctx context.Context) result.Result[T] {
	return result.From(c.Do(ctx))
}

// Start runs the call on a new goroutine and returns its Future.
func (c *Call[T]) Start(ctx context.Context) *Future[T] {
	f := &Future[T]{
		op:     c.op,
		parent: ctx,
		done:   make(chan struct{}),
	}
	f.p = promise.NewWithContext(ctx, c.Do)
	go func() {
		f.p.Await()
		// Releases the promise context; a no-op on the outcome.
		f.p.Cancel()
		close(f.done)
	}()
	return f
}

// classify makes sure err is an *apierr.Error, turning raw context errors
// from waits between requests into cancellations or timeouts.
func classify(ctx context.Context, op string, err error) error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return apierr.FromTransport(op, ctxErr)
	}
	return apierr.FromTransport(op, err)
}

// Future is a call running in the background.
type Future[T any] struct {
	op     string
	parent context.Context
	p      *promise.Promise[T]
	done   chan struct{}
}

// Cancel aborts the call. An in-flight request is interrupted and the
// future resolves to a failure of kind cancelled. Cancelling a completed
// future has no effect.
func (f *Future[T]) Cancel() {
	f.p.Cancel()
}

// Done is closed when the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done. When ctx ends
// first the future is cancelled and its cancelled result is returned.
func (f *Future[T]) Await(ctx context.Context) result.Result[T] {
	v, err := f.p.AwaitWithContext(ctx)
	if errors.Is(err, promise.ErrTimeout) {
		if f.p.IsPending() {
			f.Cancel()
		}
		v, err = f.p.Await()
	}
	<-f.done
	return f.settle(v, err)
}

// Get is Await returning (value, error).
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	return f.Await(ctx).Unwrap()
}

// Result returns the outcome without blocking; ok is false while the call
// is still running.
func (f *Future[T]) Result() (res result.Result[T], ok bool) {
	select {
	case <-f.done:
		return f.settle(f.p.Await()), true
	default:
		return res, false
	}
}

// settle turns a rejection by the promise itself into a cancellation.
func (f *Future[T]) settle(v T, err error) result.Result[T] {
	switch {
	case err == nil:
		return result.OK(v)
	case errors.Is(err, promise.ErrCanceled):
		if ctxErr := f.parent.Err(); ctxErr != nil {
			return result.Err[T](apierr.FromTransport(f.op, ctxErr))
		}
		return result.Err[T](apierr.Cancelled(f.op, context.Canceled))
	default:
		return result.Err[T](classify(f.parent, f.op, err))
	}
}
