package flow

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/queryflow/pipeline"
	"github.com/kbukum/queryflow/source"
)

// bridge turns native change notifications into throttled change triggers.
type bridge struct {
	sub    source.Subscription
	signal chan struct{}
	notify func()
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// newBridge subscribes to target on n. Each notification is throttled with
// window before forward is called. onNotify runs on the notifying goroutine
// for every raw notification and must not block.
func newBridge(
	ctx context.Context,
	n source.Notifier,
	target string,
	descendants bool,
	window time.Duration,
	clk clock.Clock,
	forward func(),
	onNotify func(),
) (*bridge, error) {
	b := &bridge{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.notify = func() {
		if onNotify != nil {
			onNotify()
		}
		select {
		case b.signal <- struct{}{}:
		default:
		}
	}

	sub, err := n.Subscribe(target, descendants, b.notify)
	if err != nil {
		return nil, err
	}
	b.sub = sub

	ctx, b.cancel = context.WithCancel(ctx)
	triggers := pipeline.Throttle(pipeline.FromChannel(b.signal), window, pipeline.WithThrottleClock(clk))
	go func() {
		defer close(b.done)
		_ = pipeline.Drain(triggers, func(context.Context, struct{}) error {
			forward()
			return nil
		}).Run(ctx)
	}()
	return b, nil
}

// Close cancels the subscription and stops forwarding. Safe to call more
// than once.
func (b *bridge) Close() {
	b.once.Do(func() {
		b.sub.Cancel()
		b.cancel()
	})
}

// Done is closed once the forwarding goroutine has exited.
func (b *bridge) Done() <-chan struct{} { return b.done }
