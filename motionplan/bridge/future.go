package bridge

import (
	"context"
	"sync"

	"github.com/robosim/armcore/motionplan/ik"
)

// Future is the pending result of one Solve call.
type Future struct {
	id   uint64
	done chan struct{}
	once sync.Once
	res  ik.Result
	err  error
}

func newFuture(id uint64) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// failedFuture returns an already resolved future for a request that never got an id.
func failedFuture(err error) *Future {
	f := newFuture(0)
	f.resolve(ik.Result{}, err)
	return f
}

// ID is the request id, zero for requests rejected before they were queued.
func (f *Future) ID() uint64 {
	return f.id
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done. A done ctx only stops waiting, the solve
// itself keeps its place in the queue.
func (f *Future) Await(ctx context.Context) (ik.Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return ik.Result{}, ctx.Err()
	}
}

// resolve settles the future once. It reports whether this call settled it.
func (f *Future) resolve(res ik.Result, err error) bool {
	settled := false
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
		settled = true
	})
	return settled
}
