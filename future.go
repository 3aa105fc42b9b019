package bridge

import (
	"context"
	"sync"
)

// Future is the one-shot result of an asynchronous operation. It completes
// exactly once, with either a value or an error, and never changes afterward.
//
// A Future is not cancellable: abandoning Wait does not stop the underlying
// operation, it only stops waiting for it.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolvedFuture returns an already-completed future. Used to fail fast
// without scheduling work, e.g. on a closed transport.
func resolvedFuture[T any](val T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(val, err)
	return f
}

// complete settles the future. Later calls are no-ops.
func (f *Future[T]) complete(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done. On ctx expiry the
// zero value and ctx.Err() are returned; the operation itself keeps running.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err blocks until the future settles and returns its error, if any.
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}
