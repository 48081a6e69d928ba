package flow

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/observability"
	"github.com/kbukum/queryflow/resilience"
)

// DefaultThrottleWindow is the minimum spacing between published states
// when WithThrottleWindow is not given.
const DefaultThrottleWindow = time.Second

// Option configures a Flow.
type Option func(*options)

type options struct {
	name        string
	equal       any
	errorEqual  ErrorEqual
	window      time.Duration
	clock       clock.Clock
	descendants bool
	bulkhead    *resilience.Bulkhead
	log         *logger.Logger
	metrics     *observability.Metrics
	ctx         context.Context
}

func defaultOptions() options {
	return options{
		errorEqual:  DefaultErrorEqual,
		window:      DefaultThrottleWindow,
		clock:       clock.WallClock,
		descendants: true,
		ctx:         context.Background(),
	}
}

// WithName names the flow in logs, metrics and traces. Defaults to the
// query target.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithEqual sets the item equality used for deduplication. Defaults to
// DefaultEqual. The item type must match the flow's.
func WithEqual[T any](equal func(a, b T) bool) Option {
	return func(o *options) {
		if equal != nil {
			o.equal = Equal[T](equal)
		}
	}
}

// WithErrorEqual sets the failure equality used for deduplication.
// Defaults to DefaultErrorEqual.
func WithErrorEqual(equal ErrorEqual) Option {
	return func(o *options) {
		if equal != nil {
			o.errorEqual = equal
		}
	}
}

// WithThrottleWindow sets the minimum spacing between published states
// and between change triggers. Zero disables throttling. Negative windows
// are rejected by New.
func WithThrottleWindow(d time.Duration) Option {
	return func(o *options) { o.window = d }
}

// WithClock sets the clock used by the throttles.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithNotifyForDescendants controls whether changes below the target also
// trigger a query. Defaults to true.
func WithNotifyForDescendants(on bool) Option {
	return func(o *options) { o.descendants = on }
}

// WithBulkhead bounds how many queries run at once across every flow that
// shares b. A query that cannot get a slot publishes
// Failure(resilience.ErrBulkheadFull).
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(o *options) { o.bulkhead = b }
}

// WithLogger sets the logger. Defaults to logger.Get("queryflow").
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records query, publish and notification metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithContext sets the parent context. Cancelling it shuts the flow down.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}
