// Package bridge runs ik solves on a single background worker so callers never block on the
// search itself. Requests are queued, processed one at a time, and answered through futures
// matched by request id.
package bridge

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/robosim/armcore/logging"
	"github.com/robosim/armcore/motionplan/ik"
	"github.com/robosim/armcore/utils"
)

// DefaultQueueSize is the task queue capacity when none is configured.
const DefaultQueueSize = 64

// Solver is the work the bridge runs. *ik.Solver satisfies it.
type Solver interface {
	Solve(ctx context.Context, target r3.Vector, opts ik.Options) (ik.Result, error)
}

// Config holds the bridge settings exposed through configuration files.
type Config struct {
	QueueSize int `json:"queue_size,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c == nil {
		return nil
	}
	if c.QueueSize < 0 {
		return errors.Errorf("%s: queue_size cannot be negative, got %d", path, c.QueueSize)
	}
	return nil
}

type request struct {
	id     uint64
	target r3.Vector
	opts   ik.Options
}

type reply struct {
	id  uint64
	res ik.Result
	err error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfig applies file configuration.
func WithConfig(cfg *Config) Option {
	return func(b *Bridge) {
		if cfg != nil && cfg.QueueSize > 0 {
			b.queueSize = cfg.QueueSize
		}
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithClock replaces the clock used to time solves.
func WithClock(clk clock.Clock) Option {
	return func(b *Bridge) { b.clock = clk }
}

// WithRegisterer registers the bridge metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) { b.registerer = reg }
}

// Bridge owns one worker goroutine and the table of pending requests.
type Bridge struct {
	solver     Solver
	logger     logging.Logger
	clock      clock.Clock
	queueSize  int
	registerer prometheus.Registerer
	metrics    *metrics

	ids      atomic.Uint64
	inFlight atomic.Uint64

	mu         sync.Mutex
	pending    map[uint64]*Future
	started    bool
	terminated bool
	broken     error
	// closed is closed on terminate or worker failure, releasing callers blocked on a full queue.
	closed  chan struct{}
	tasks   chan request
	workers *utils.StoppableWorkers
}

// New creates a bridge over solver. The worker starts on the first Solve.
func New(solver Solver, logger logging.Logger, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		solver:    solver,
		logger:    logger,
		clock:     clock.New(),
		queueSize: DefaultQueueSize,
		pending:   map[uint64]*Future{},
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	m, err := newMetrics(b.registerer)
	if err != nil {
		return nil, errors.Wrap(err, "registering ik bridge metrics")
	}
	b.metrics = m
	b.tasks = make(chan request, b.queueSize)
	return b, nil
}

// Solve queues a solve and returns its future. It blocks only while the queue is full, until
// space frees up or ctx is done. A solver that finds no good answer resolves normally with a large
// Result.Error.
func (b *Bridge) Solve(ctx context.Context, target r3.Vector, opts ik.Options) *Future {
	b.mu.Lock()
	switch {
	case b.terminated:
		b.mu.Unlock()
		return failedFuture(ErrTerminated)
	case b.broken != nil:
		err := errors.Wrap(ErrBroken, b.broken.Error())
		b.mu.Unlock()
		return failedFuture(err)
	}
	if !b.started {
		b.startLocked()
	}
	req := request{id: b.ids.Inc(), target: target, opts: opts}
	f := newFuture(req.id)
	b.pending[req.id] = f
	b.mu.Unlock()

	select {
	case b.tasks <- req:
		b.metrics.queueDepth.Inc()
	case <-ctx.Done():
		b.settle(reply{id: req.id, err: ctx.Err()})
	case <-b.closed:
		// Terminate or the failure handler already rejected the future.
	}
	return f
}

// SolveSync queues a solve and waits for it.
func (b *Bridge) SolveSync(ctx context.Context, target r3.Vector, opts ik.Options) (ik.Result, error) {
	return b.Solve(ctx, target, opts).Await(ctx)
}

// Pending returns the number of unresolved requests.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Started reports whether the worker has been started.
func (b *Bridge) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Terminate stops the worker, rejects every pending request with ErrAborted and makes later Solve
// calls fail with ErrTerminated. It is safe to call more than once.
func (b *Bridge) Terminate() {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.terminated = true
	if b.broken == nil {
		close(b.closed)
	}
	pending := b.drainLocked()
	workers := b.workers
	b.mu.Unlock()

	for _, f := range pending {
		if f.resolve(ik.Result{}, ErrAborted) {
			b.metrics.recordOutcome(ErrAborted)
		}
	}
	if workers != nil {
		workers.Stop()
	}
	b.metrics.queueDepth.Set(0)
	b.logger.Debugw("ik bridge terminated", "aborted", len(pending))
}

func (b *Bridge) startLocked() {
	b.started = true
	b.workers = utils.NewStoppableWorkers()
	b.workers.AddWorker(b.run, b.fail)
	b.logger.Debugw("ik bridge worker started", "queue_size", b.queueSize)
}

func (b *Bridge) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.tasks:
			b.metrics.queueDepth.Dec()
			b.inFlight.Store(req.id)
			start := b.clock.Now()
			res, err := b.solver.Solve(ctx, req.target, req.opts)
			elapsed := b.clock.Since(start)
			b.inFlight.Store(0)
			b.metrics.latency.Observe(elapsed.Seconds())
			b.logger.Debugw("ik request finished", "id", req.id, "duration", elapsed, "error", res.Error)
			b.settle(reply{id: req.id, res: res, err: err})
		}
	}
}

// settle resolves the pending future matching r.id and removes it from the table. Replies for ids
// no longer pending are dropped.
func (b *Bridge) settle(r reply) {
	b.mu.Lock()
	f, ok := b.pending[r.id]
	delete(b.pending, r.id)
	b.mu.Unlock()
	if !ok {
		return
	}
	if f.resolve(r.res, r.err) {
		b.metrics.recordOutcome(r.err)
	}
}

// fail runs on the worker goroutine as soon as the solver panics. The in flight request and every
// queued one fail with the same transport error and the bridge refuses new work. Later calls are
// no-ops.
func (b *Bridge) fail(value interface{}) {
	wte := &WorkerTransportError{RequestID: b.inFlight.Load(), Value: value}

	b.mu.Lock()
	if b.terminated || b.broken != nil {
		b.mu.Unlock()
		return
	}
	b.broken = wte
	close(b.closed)
	pending := b.drainLocked()
	b.mu.Unlock()

	for _, f := range pending {
		if f.resolve(ik.Result{}, wte) {
			b.metrics.recordOutcome(wte)
		}
	}
	b.metrics.queueDepth.Set(0)
	b.logger.Errorw("ik worker failed", "request", wte.RequestID, "panic", value, "rejected", len(pending))
}

func (b *Bridge) drainLocked() []*Future {
	out := make([]*Future, 0, len(b.pending))
	for id, f := range b.pending {
		out = append(out, f)
		delete(b.pending, id)
	}
	return out
}

var (
	defaultMu     sync.Mutex
	defaultBridge *Bridge
)

// Default returns the process wide bridge over the SO-101 solver, creating it on first use.
func Default() *Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge == nil {
		logger := logging.Global().Sublogger("ik.bridge")
		// Without a registerer metric registration cannot fail.
		defaultBridge, _ = New(ik.NewDefaultSolver(logger), logger)
	}
	return defaultBridge
}

// Terminate terminates the process wide bridge. Later Default().Solve calls fail with
// ErrTerminated until Reset.
func Terminate() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge != nil {
		defaultBridge.Terminate()
	}
}

// Reset terminates the process wide bridge and discards it so the next Default builds a fresh
// one. Use it to recover from ErrBroken.
func Reset() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBridge != nil {
		defaultBridge.Terminate()
		defaultBridge = nil
	}
}
