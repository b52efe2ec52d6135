package scip

import (
	"context"
	"sync"
)

// Future is a one-shot completion. It settles exactly once, with a value or an error.
type Future[T any] struct {
	op   string
	done chan struct{}

	mu      sync.Mutex
	settled bool
	val     T
	err     error
	hooks   []func(T, error)
}

func newFuture[T any](op string) *Future[T] {
	return &Future[T]{op: op, done: make(chan struct{})}
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done. Giving up on ctx does not
// settle the future; use Cancel for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the future settles.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Cancel fails the future with a KindCanceled error if it has not settled yet.
// Reports whether this call settled it.
func (f *Future[T]) Cancel() bool {
	return f.fail(canceledError(f.op, errCanceledByCaller))
}

func (f *Future[T]) complete(v T) bool {
	return f.settle(v, nil)
}

func (f *Future[T]) fail(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val, f.err = v, err
	hooks := f.hooks
	f.hooks = nil
	f.mu.Unlock()

	// Cleanup hooks run before waiters are released.
	for _, h := range hooks {
		h(v, err)
	}
	close(f.done)
	return true
}

// whenSettled runs h after settlement, immediately if already settled.
func (f *Future[T]) whenSettled(h func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.hooks = append(f.hooks, h)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	h(v, err)
}
