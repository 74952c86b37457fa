package syncengine

import (
	"context"
	"sync"
)

// Result is the outcome of one save request. It resolves once the write
// that covered the request finishes, which may be a write issued for a
// later request on the same slot.
type Result struct {
	once    sync.Once
	done    chan struct{}
	err     error
	version int64
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Resolved returns a Result that is already complete with err.
func Resolved(err error) *Result {
	r := newResult()
	r.resolve(0, err)
	return r
}

func (r *Result) resolve(version int64, err error) {
	r.once.Do(func() {
		r.version = version
		r.err = err
		close(r.done)
	})
}

// Done is closed when the result resolves.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result resolves or ctx ends.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the write error, or nil while the result is still pending.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Version is the remote version produced by the covering write, 0 when the
// write failed or the request was a no-op.
func (r *Result) Version() int64 {
	select {
	case <-r.done:
		return r.version
	default:
		return 0
	}
}

// WaitAll waits for every result and returns the first error.
func WaitAll(ctx context.Context, results ...*Result) error {
	var first error
	for _, r := range results {
		if r == nil {
			continue
		}
		if err := r.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
