// Package result provides the outcome type of every Picsart API call: a
// success carrying a value or a failure carrying an error, never both.
//
// Results are plain values and safe to pass through channels or collect
// from concurrent calls.
package result

import (
	core "github.com/alextanhongpin/core/types/result"
)

// ErrNoResult is returned when an operation needs at least one result.
var ErrNoResult = core.ErrNoResult

// Result is the outcome of a call. The zero value is a success holding the
// zero T; use OK and Err to construct one explicitly.
type Result[T any] struct {
	r core.Result[T]
}

// OK creates a successful Result.
func OK[T any](v T) Result[T] {
	return Result[T]{r: *core.OK(v)}
}

// Err creates a failed Result. It panics when err is nil, because a failure
// without a cause cannot be told apart from a success.
func Err[T any](err error) Result[T] {
	if err == nil {
		panic("result: Err called with nil error")
	}
	return Result[T]{r: *core.Err[T](err)}
}

// From wraps a (value, error) pair. The value is dropped when err is set.
func From[T any](v T, err error) Result[T] {
	return Result[T]{r: *core.From(func() (T, error) { return v, err })}
}

// Unwrap returns the value and error. Exactly one of them is meaningful.
func (r Result[T]) Unwrap() (T, error) {
	return r.r.Unwrap()
}

// Value returns the value, or the zero T for a failure.
func (r Result[T]) Value() T {
	return r.r.Data
}

// Error returns the failure cause, or nil for a success.
func (r Result[T]) Error() error {
	return r.r.Err
}

func (r Result[T]) IsOK() bool {
	return r.r.IsOK()
}

func (r Result[T]) IsErr() bool {
	return r.r.IsErr()
}

// MustUnwrap returns the value, panicking on a failure.
func (r Result[T]) MustUnwrap() T {
	return r.r.MustUnwrap()
}

// UnwrapOr returns the value on success, otherwise def.
func (r Result[T]) UnwrapOr(def T) T {
	return r.r.UnwrapOr(def)
}

// Map transforms a successful value; failures pass through unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.r.Err != nil {
		return Result[U]{r: *core.Err[U](r.r.Err)}
	}
	return OK(fn(r.r.Data))
}

// Partition separates results into successful values and errors.
func Partition[T any](rs ...Result[T]) (values []T, errs []error) {
	return core.Partition(unwrapAll(rs)...)
}

// All returns every value when all results succeeded, or the first error.
func All[T any](rs ...Result[T]) ([]T, error) {
	return core.All(unwrapAll(rs)...)
}

func unwrapAll[T any](rs []Result[T]) []*core.Result[T] {
	out := make([]*core.Result[T], len(rs))
	for i := range rs {
		out[i] = &rs[i].r
	}
	return out
}
