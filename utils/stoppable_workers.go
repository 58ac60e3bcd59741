package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers runs goroutines that share one context, cancelled by Stop.
type StoppableWorkers struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel func()
	active sync.WaitGroup
}

// NewStoppableWorkers returns an empty set of workers.
func NewStoppableWorkers() *StoppableWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	return &StoppableWorkers{ctx: ctx, cancel: cancel}
}

// AddWorker starts f in its own goroutine. If f panics, onPanic is called with the recovered value
// on that goroutine before it exits. Workers added after Stop never start.
func (sw *StoppableWorkers) AddWorker(f func(context.Context), onPanic func(value interface{})) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ctx.Err() != nil {
		return
	}

	sw.active.Add(1)
	// A panic inside onPanic itself is still logged by PanicCapturingGo.
	goutils.PanicCapturingGo(func() {
		defer sw.active.Done()
		defer func() {
			if r := recover(); r != nil {
				onPanic(r)
			}
		}()
		f(sw.ctx)
	})
}

// Stop cancels the workers' context and waits for all of them to return.
func (sw *StoppableWorkers) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cancel()
	sw.active.Wait()
}
