package picsart

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"github.com/me/creativeapis/pkg/apierr"
)

// ErrStreamConsumed is wrapped by the error yielded when a Stream is
// iterated a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// Stream is a lazy, finite sequence whose elements may each require a
// request. It can be iterated once; elements are fetched only as the
// iteration advances.
type Stream[T any] struct {
	op   string
	next func(ctx context.Context) (v T, ok bool, err error)
	used atomic.Bool
}

// newStream wraps next, which returns ok=false once the sequence is
// exhausted.
func newStream[T any](op string, next func(ctx context.Context) (T, bool, error)) *Stream[T] {
	return &Stream[T]{op: op, next: next}
}

// sliceStream yields the elements of a slice fetched by one request.
func sliceStream[T any](op string, fetch func(ctx context.Context) ([]T, error)) *Stream[T] {
	var (
		items   []T
		fetched bool
	)
	return newStream(op, func(ctx context.Context) (T, bool, error) {
		var zero T
		if !fetched {
			v, err := fetch(ctx)
			if err != nil {
				return zero, false, err
			}
			items, fetched = v, true
		}
		if len(items) == 0 {
			return zero, false, nil
		}
		v := items[0]
		items = items[1:]
		return v, true, nil
	})
}

// All returns an iterator over the stream. Iteration stops after the first
// error, which is always an *apierr.Error. Stopping early releases the
// stream; it cannot be resumed.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if !s.used.CompareAndSwap(false, true) {
			yield(zero, apierr.Wrap(apierr.KindValidation, s.op, ErrStreamConsumed))
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(zero, apierr.FromTransport(s.op, err))
				return
			}
			v, ok, err := s.next(ctx)
			if err != nil {
				yield(zero, classify(ctx, s.op, err))
				return
			}
			if !ok {
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for v, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
