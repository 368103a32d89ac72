package cloudbackend

import (
	"context"
	"sync"
)

// Handler receives the outcome of an asynchronous call: exactly one of
// OnComplete or OnError, on the client's Executor.
type Handler[T any] interface {
	OnComplete(result T)
	OnError(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs[T any] struct {
	Complete func(result T)
	Error    func(err error)
}

func (h HandlerFuncs[T]) OnComplete(result T) {
	if h.Complete != nil {
		h.Complete(result)
	}
}

func (h HandlerFuncs[T]) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// Future is the result of an asynchronous call. It completes exactly once,
// with either a result or an error.
type Future[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
	err    error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete reports whether this call completed the future.
func (f *Future[T]) complete(result T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed once the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx is done. Cancelling ctx
// does not cancel the call itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the call
// is still running.
func (f *Future[T]) Result() (result T, err error, ok bool) {
	select {
	case <-f.done:
		return f.result, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}
