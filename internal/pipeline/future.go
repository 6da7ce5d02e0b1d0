package pipeline

import (
	"context"
	"sync"
)

// Future holds a value that is produced once, possibly after readers
// start waiting for it.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve sets the outcome. Only the first call has an effect; it reports
// whether this call won.
func (f *Future[T]) Resolve(value T, err error) bool {
	won := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		won = true
	})
	return won
}

// Wait blocks until the future is resolved or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Resolved reports whether Resolve has been called.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
