package pipeline

import (
	"context"
	"time"

	"github.com/juju/clock"
)

// ThrottleOption configures Throttle.
type ThrottleOption func(*throttleConfig)

type throttleConfig struct {
	clock clock.Clock
}

// WithThrottleClock sets the clock used to measure elapsed time and to schedule
// trailing emissions. Defaults to clock.WallClock.
func WithThrottleClock(c clock.Clock) ThrottleOption {
	return func(cfg *throttleConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// Throttle limits emissions to at most one per window.
//
// The first value is emitted immediately. A value arriving at least window after
// the last emission is emitted immediately. A value arriving sooner replaces the
// single pending value, which is emitted once window has elapsed since the last
// emission. A burst therefore yields its first and its last value, and nothing in
// between. A window of zero (or less) passes every value through.
//
// A trailing emission counts as happening at its scheduled time, even if the
// consumer pulls it later. If the source is exhausted while a value is pending,
// the pending value is still emitted when its window elapses. Cancelling the
// context drops it.
func Throttle[T any](p *Pipeline[T], window time.Duration, opts ...ThrottleOption) *Pipeline[T] {
	if window < 0 {
		window = 0
	}
	cfg := throttleConfig{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline[T]{
		create: func(ctx context.Context) Iterator[T] {
			source := p.create(ctx)
			thrCtx, cancel := context.WithCancel(ctx)

			// Unbuffered: a value is stamped before the next one is pulled, so
			// arrival order and arrival time always agree.
			ch := make(chan stamped[T])
			go func() {
				defer close(ch)
				for {
					val, ok, err := source.Next(thrCtx)
					if err != nil {
						select {
						case ch <- stamped[T]{err: err}:
						case <-thrCtx.Done():
						}
						return
					}
					if !ok {
						return
					}
					at := cfg.clock.Now()
					select {
					case ch <- stamped[T]{val: val, at: at}:
					case <-thrCtx.Done():
						return
					}
				}
			}()

			return &throttleIter[T]{
				ch:     ch,
				window: window,
				clock:  cfg.clock,
				cancel: cancel,
				closer: source.Close,
			}
		},
	}
}

// stamped carries a value together with the time it was pulled from upstream.
type stamped[T any] struct {
	val T
	at  time.Time
	err error
}

type throttleIter[T any] struct {
	ch     <-chan stamped[T]
	window time.Duration
	clock  clock.Clock
	cancel context.CancelFunc
	closer func() error

	emitted  bool
	lastEmit time.Time

	// pending is only meaningful while timer is non-nil.
	pending  T
	timer    clock.Timer
	deadline time.Time

	// held is a value that arrived after the pending deadline; it is offered
	// once the pending value has been emitted.
	held *stamped[T]
	done bool
}

func (it *throttleIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for {
		if it.held != nil {
			in := *it.held
			it.held = nil
			if val, emit := it.offer(in); emit {
				return val, true, nil
			}
			continue
		}
		if it.done && it.timer == nil {
			var zero T
			return zero, false, nil
		}

		var in <-chan stamped[T]
		if !it.done {
			in = it.ch
		}
		var fire <-chan time.Time
		if it.timer != nil {
			fire = it.timer.Chan()
		}

		select {
		case r, open := <-in:
			if !open {
				it.done = true
				continue
			}
			if r.err != nil {
				it.done = true
				it.dropPending()
				var zero T
				return zero, false, r.err
			}
			if it.timer != nil && !r.at.Before(it.deadline) {
				it.held = &r
				return it.flush(it.deadline), true, nil
			}
			if val, emit := it.offer(r); emit {
				return val, true, nil
			}

		case <-fire:
			return it.flush(it.deadline), true, nil

		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// offer applies the throttle rule to an arriving value and reports whether it
// should be emitted right away.
func (it *throttleIter[T]) offer(in stamped[T]) (T, bool) {
	if !it.emitted || in.at.Sub(it.lastEmit) >= it.window {
		it.dropPending()
		it.emitted = true
		it.lastEmit = in.at
		return in.val, true
	}

	it.pending = in.val
	if it.timer == nil {
		it.deadline = it.lastEmit.Add(it.window)
		it.timer = it.clock.NewTimer(it.deadline.Sub(it.clock.Now()))
	}
	var zero T
	return zero, false
}

// flush emits the pending value as of its scheduled time.
func (it *throttleIter[T]) flush(at time.Time) T {
	val := it.pending
	it.dropPending()
	it.lastEmit = at
	return val
}

func (it *throttleIter[T]) dropPending() {
	if it.timer != nil {
		it.timer.Stop()
		it.timer = nil
	}
	var zero T
	it.pending = zero
}

func (it *throttleIter[T]) Close() error {
	it.cancel()
	it.dropPending()
	return it.closer()
}
