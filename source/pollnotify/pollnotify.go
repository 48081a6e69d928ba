// Package pollnotify is a Notifier that fires every listener on a fixed
// interval, for sources with no change feed of their own.
package pollnotify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/source"
	"github.com/kbukum/queryflow/validation"
)

// Config holds the polling interval.
type Config struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// Validate checks that the interval is positive.
func (c Config) Validate() error {
	if appErr := validation.New().Positive("interval", c.Interval).Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock times the interval.
func WithClock(c clock.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// Notifier fires all of its listeners once per interval.
type Notifier struct {
	*source.Hub

	interval time.Duration
	clock    clock.Clock
	ticks    atomic.Int64
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ source.Notifier     = (*Notifier)(nil)
	_ component.Component = (*Notifier)(nil)
)

// New creates a Notifier. Nothing fires until Run or Start.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Notifier{
		Hub:      source.NewHub("pollnotify"),
		interval: cfg.Interval,
		clock:    clock.WallClock,
		log:      logger.Get("pollnotify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Name returns the component name.
func (n *Notifier) Name() string { return "poll:" + n.interval.String() }

// Ticks returns how many intervals have elapsed.
func (n *Notifier) Ticks() int64 { return n.ticks.Load() }

// Run fires the listeners every interval until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	timer := n.clock.NewTimer(n.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.Chan():
			n.ticks.Add(1)
			count := n.NotifyAll()
			n.log.Debug("poll interval elapsed", logger.Fields(logger.FieldSubscribers, count))
			timer.Reset(n.interval)
		}
	}
}

// Start runs the poll loop in the background.
func (n *Notifier) Start(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		_ = n.Run(ctx)
	}()
	n.log.Info("polling started", logger.Fields("interval", n.interval.String()))
	return nil
}

// Stop ends the poll loop.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports whether the poll loop is running.
func (n *Notifier) Health(context.Context) component.Health {
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()
	h := component.Health{Name: n.Name(), Status: component.StatusUnhealthy}
	if done == nil {
		h.Message = "not started"
		return h
	}
	select {
	case <-done:
		h.Message = "stopped"
	default:
		h.Status = component.StatusHealthy
		h.Message = fmt.Sprintf("%d ticks", n.ticks.Load())
	}
	return h
}
