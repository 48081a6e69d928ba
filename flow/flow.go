package flow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/observability"
	"github.com/kbukum/queryflow/pipeline"
	"github.com/kbukum/queryflow/source"
	"github.com/kbukum/queryflow/validation"
)

// Flow observes one query on a Source and publishes its latest result.
//
// Change notifications and Refresh calls merge into a single trigger slot.
// Each trigger runs the query; results equal to the previous one are
// dropped, the rest pass a throttle and become the published State.
type Flow[T any] struct {
	id      string
	name    string
	query   source.Query
	window  time.Duration
	clock   clock.Clock
	same    func(a, b Result[T]) bool
	exec    *executor[T]
	state   *State[T]
	bridge  *bridge
	log     *logger.Logger
	metrics *observability.Metrics

	triggers   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	stopParent atomic.Pointer[func() bool]
	running    sync.WaitGroup
	closed     atomic.Bool
	shutdown   sync.Once
	done       chan struct{}
}

// New starts a flow over src. One query is issued immediately; the state is
// Success(empty) until its result is published.
func New[T any](src source.Source, query source.Query, transform Transform[T], opts ...Option) (*Flow[T], error) {
	if src == nil {
		return nil, errors.MissingField("source")
	}
	if transform == nil {
		return nil, errors.MissingField("transform")
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	v := validation.New().NonNegative("throttle_window", o.window)
	if appErr := v.Validate(); appErr != nil {
		return nil, appErr
	}
	equal := Equal[T](DefaultEqual[T])
	if o.equal != nil {
		eq, ok := o.equal.(Equal[T])
		if !ok {
			var zero T
			return nil, errors.InvalidInput("equal", fmt.Sprintf("equality policy does not compare %T", zero))
		}
		equal = eq
	}
	if o.name == "" {
		o.name = query.Target
	}
	if o.log == nil {
		o.log = logger.Get("queryflow")
	}
	errEqual := o.errorEqual

	f := &Flow[T]{
		id:      uuid.NewString(),
		name:    o.name,
		query:   query,
		window:  o.window,
		clock:   o.clock,
		state:   newState[T](),
		log:     o.log.WithFlow(o.name),
		metrics: o.metrics,
		same: func(a, b Result[T]) bool {
			return SameResult(a, b, equal, errEqual)
		},
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	f.exec = &executor[T]{
		flow:      f.name,
		querier:   src,
		query:     query,
		transform: transform,
		bulkhead:  o.bulkhead,
		metrics:   o.metrics,
		log:       f.log,
	}
	f.ctx, f.cancel = context.WithCancel(o.ctx)

	b, err := newBridge(f.ctx, src, query.Target, o.descendants, f.window, f.clock, f.trigger, func() {
		f.metrics.RecordNotification(f.ctx, f.name)
	})
	if err != nil {
		f.cancel()
		return nil, fmt.Errorf("subscribe to %q: %w", query.Target, err)
	}
	f.bridge = b

	f.trigger()
	f.running.Add(1)
	go f.run()
	stop := context.AfterFunc(o.ctx, func() {
		_ = f.Shutdown(context.Background())
	})
	f.stopParent.Store(&stop)

	f.log.Info("flow started", logger.Fields(
		logger.FieldTarget, query.Target,
		"throttle_window", f.window.String(),
		"descendants", o.descendants,
	))
	return f, nil
}

// Name returns the flow name.
func (f *Flow[T]) Name() string { return f.name }

// ID returns a unique id for this flow instance.
func (f *Flow[T]) ID() string { return f.id }

// Query returns the observed query.
func (f *Flow[T]) Query() source.Query { return f.query }

// Closed reports whether Shutdown has been called.
func (f *Flow[T]) Closed() bool { return f.closed.Load() }

// State returns the observable published state.
func (f *Flow[T]) State() *State[T] { return f.state }

// Refresh asks for a query as soon as possible. It never blocks; calls
// made while a trigger is already pending coalesce with it.
func (f *Flow[T]) Refresh() {
	f.trigger()
}

func (f *Flow[T]) trigger() {
	if f.closed.Load() {
		return
	}
	select {
	case f.triggers <- struct{}{}:
	default:
	}
}

func (f *Flow[T]) run() {
	defer f.running.Done()

	results := pipeline.Map(pipeline.FromChannel(f.triggers), func(ctx context.Context, _ struct{}) (Result[T], error) {
		return f.exec.execute(ctx), nil
	})
	results = pipeline.Tap(results, func(_ context.Context, r Result[T]) error {
		f.log.Debug("query completed", logger.Fields(logger.FieldStatus, r.Status(), logger.FieldItems, len(r.items)))
		return nil
	})
	distinct := pipeline.Distinct(results, func(a, b Result[T]) bool {
		if !f.same(a, b) {
			return false
		}
		f.metrics.RecordSuppressed(f.ctx, f.name)
		f.log.Debug("duplicate result suppressed", logger.Fields(logger.FieldStatus, b.Status()))
		return true
	})
	throttled := pipeline.Throttle(distinct, f.window, pipeline.WithThrottleClock(f.clock))

	err := pipeline.Drain(throttled, f.publish).Run(f.ctx)
	if err != nil && f.ctx.Err() == nil {
		f.log.Error("flow stopped unexpectedly", logger.Fields(logger.FieldError, err.Error()))
	}
}

func (f *Flow[T]) publish(ctx context.Context, r Result[T]) error {
	published, sealed := f.state.set(r, f.same)
	switch {
	case sealed:
		return nil
	case !published:
		f.metrics.RecordSuppressed(ctx, f.name)
		f.log.Debug("result equals published state", logger.Fields(logger.FieldStatus, r.Status()))
		return nil
	}
	f.metrics.RecordPublish(ctx, f.name)
	f.log.Debug("state published", logger.Fields(
		logger.FieldStatus, r.Status(),
		logger.FieldItems, len(r.items),
		logger.FieldSubscribers, f.state.Subscribers(),
	))
	return nil
}

// Shutdown stops the flow: nothing is published after it is called, the
// subscription is cancelled, and subscriber channels are closed. It waits
// for the flow goroutines until ctx ends. Safe to call more than once and
// concurrently with an in-flight query.
func (f *Flow[T]) Shutdown(ctx context.Context) error {
	f.shutdown.Do(func() {
		f.closed.Store(true)
		f.state.seal()
		f.cancel()
		f.bridge.Close()
		if stop := f.stopParent.Load(); stop != nil {
			(*stop)()
		}
		f.state.close()

		go func() {
			f.running.Wait()
			<-f.bridge.Done()
			f.log.Info("flow stopped")
			close(f.done)
		}()
	})

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Shutdown has finished stopping the flow goroutines.
func (f *Flow[T]) Done() <-chan struct{} { return f.done }
