// Package kafkanotify is a Notifier fed by a Kafka topic.
//
// Each message names one changed target: its key, or its value when the key
// is empty. The target "*" notifies every listener. Pair the Notifier with
// a Querier through source.Compose.
package kafkanotify

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/observability"
	"github.com/kbukum/queryflow/pipeline"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/source"
)

// AllTargets is the message target that notifies every listener.
const AllTargets = "*"

// Reader is the part of *kafkago.Reader the Notifier consumes.
type Reader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithReader consumes r instead of a reader built from the config.
func WithReader(r Reader) Option {
	return func(n *Notifier) { n.reader = r }
}

// WithMetrics records read errors on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithClock times the backoff between failed reads.
func WithClock(c clock.Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// Stats counts what a Notifier has consumed.
type Stats struct {
	Messages   int64
	Dispatched int64
	Errors     int64
}

// Notifier dispatches targets read from a topic to its listeners.
type Notifier struct {
	*source.Hub

	cfg     Config
	reader  Reader
	metrics *observability.Metrics
	clock   clock.Clock
	log     *logger.Logger

	messages   atomic.Int64
	dispatched atomic.Int64
	failures   atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	stopped bool
}

var (
	_ source.Notifier     = (*Notifier)(nil)
	_ component.Component = (*Notifier)(nil)
)

// New creates a Notifier. Nothing is read until Run or Start.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Notifier{
		Hub:   source.NewHub("kafkanotify"),
		cfg:   cfg,
		clock: clock.WallClock,
		log:   logger.Get("kafkanotify").WithComponent("kafka.consumer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.reader == nil {
		n.reader = n.newReader()
	}
	return n, nil
}

func (n *Notifier) newReader() *kafkago.Reader {
	start := kafkago.LastOffset
	if n.cfg.StartOffset == "first" {
		start = kafkago.FirstOffset
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     n.cfg.Brokers,
		Topic:       n.cfg.Topic,
		GroupID:     n.cfg.GroupID,
		StartOffset: start,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     n.cfg.MaxWait,
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			n.log.Error("reader: "+fmt.Sprintf(msg, args...), logger.Fields("topic", n.cfg.Topic, "group_id", n.cfg.GroupID))
		}),
	})
	n.log.Info("kafka reader created", logger.Fields(
		"topic", n.cfg.Topic, "group_id", n.cfg.GroupID, "brokers", n.cfg.Brokers,
	))
	return r
}

// Name returns the component name.
func (n *Notifier) Name() string { return "kafka:" + n.cfg.Topic }

// Stats returns the consumption counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Messages:   n.messages.Load(),
		Dispatched: n.dispatched.Load(),
		Errors:     n.failures.Load(),
	}
}

// TargetOf returns the target a message names.
func TargetOf(msg kafkago.Message) string {
	if t := strings.TrimSpace(string(msg.Key)); t != "" {
		return t
	}
	return strings.TrimSpace(string(msg.Value))
}

// Run reads the topic and dispatches each named target until ctx is done
// or the reader is closed, both of which return nil. It returns an error
// once ReadAttempts consecutive reads have failed.
func (n *Notifier) Run(ctx context.Context) error {
	n.log.Info("consume loop started", logger.Fields("topic", n.cfg.Topic))

	msgs := pipeline.FromFunc(func(context.Context) pipeline.Iterator[kafkago.Message] {
		return &messageIter{n: n}
	})
	targets := pipeline.Map(msgs, func(_ context.Context, msg kafkago.Message) (string, error) {
		n.messages.Add(1)
		return TargetOf(msg), nil
	})
	targets = pipeline.Filter(targets, func(target string) bool {
		if target == "" {
			n.log.Debug("message without target skipped", logger.Fields("topic", n.cfg.Topic))
			return false
		}
		return true
	})
	err := pipeline.Drain(targets, func(_ context.Context, target string) error {
		n.dispatch(target)
		return nil
	}).Run(ctx)

	if err != nil && ctx.Err() != nil {
		err = nil
	}
	n.log.Info("consume loop stopped", logger.Fields("topic", n.cfg.Topic))
	return err
}

func (n *Notifier) dispatch(target string) {
	var count int
	if target == AllTargets {
		count = n.NotifyAll()
	} else {
		count = n.Notify(target)
	}
	n.dispatched.Add(1)
	n.log.Debug("change notified", logger.Fields(logger.FieldTarget, target, logger.FieldSubscribers, count))
}

// messageIter reads one message per Next, retrying failed reads with
// backoff. A closed reader ends the stream.
type messageIter struct {
	n *Notifier
}

func (it *messageIter) Next(ctx context.Context) (kafkago.Message, bool, error) {
	n := it.n
	retry := resilience.RetryConfig{
		MaxAttempts:    n.cfg.ReadAttempts,
		InitialBackoff: n.cfg.InitialBackoff,
		MaxBackoff:     n.cfg.MaxBackoff,
		BackoffFactor:  2,
		Jitter:         0.1,
		Clock:          n.clock,
		RetryIf: func(err error) bool {
			return !stderrors.Is(err, io.EOF) && resilience.DefaultRetryIf(err)
		},
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			n.failures.Add(1)
			n.metrics.RecordError(ctx, "read", n.Name())
			n.log.Warn("kafka read failed, retrying", logger.Fields(
				"attempt", attempt, logger.FieldError, err.Error(), "backoff", backoff.String(),
			))
		},
	}
	msg, err := resilience.Retry(ctx, retry, func() (kafkago.Message, error) {
		return n.reader.ReadMessage(ctx)
	})
	switch {
	case err == nil:
		return msg, true, nil
	case stderrors.Is(err, io.EOF), ctx.Err() != nil:
		return kafkago.Message{}, false, nil
	}
	n.failures.Add(1)
	n.metrics.RecordError(ctx, "read", n.Name())
	return kafkago.Message{}, false, errors.ExternalServiceError("kafka", err)
}

func (it *messageIter) Close() error { return nil }

// Start runs the consume loop in the background.
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
		err := n.Run(ctx)
		if err != nil {
			n.log.Error("consume loop failed", logger.Fields(logger.FieldError, err.Error()))
		}
		n.mu.Lock()
		n.runErr = err
		n.mu.Unlock()
	}()
	return nil
}

// Stop ends the consume loop and closes the reader.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.stopped = true
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return n.Close()
}

// Close closes the reader. A running Run returns once its read fails.
func (n *Notifier) Close() error {
	return n.reader.Close()
}

// Health reports whether the consume loop is running.
func (n *Notifier) Health(context.Context) component.Health {
	n.mu.Lock()
	defer n.mu.Unlock()
	h := component.Health{Name: n.Name()}
	switch {
	case n.runErr != nil:
		h.Status, h.Message = component.StatusUnhealthy, n.runErr.Error()
	case n.stopped:
		h.Status, h.Message = component.StatusUnhealthy, "stopped"
	case n.done == nil:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	default:
		h.Status = component.StatusHealthy
		h.Message = fmt.Sprintf("%d messages, %d errors", n.messages.Load(), n.failures.Load())
	}
	return h
}
