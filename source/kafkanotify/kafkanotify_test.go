package kafkanotify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/queryflow/component"
	apperrors "github.com/kbukum/queryflow/errors"
)

type readResult struct {
	msg kafkago.Message
	err error
}

// fakeReader hands out queued results and then blocks until closed.
type fakeReader struct {
	results chan readResult
	closed  chan struct{}
	once    sync.Once
}

func newFakeReader() *fakeReader {
	return &fakeReader{results: make(chan readResult, 16), closed: make(chan struct{})}
}

func (r *fakeReader) send(key, value string) {
	r.results <- readResult{msg: kafkago.Message{Key: []byte(key), Value: []byte(value)}}
}

func (r *fakeReader) fail(err error) {
	r.results <- readResult{err: err}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case res := <-r.results:
		return res.msg, res.err
	case <-r.closed:
		return kafkago.Message{}, io.EOF
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func newTest(t *testing.T, reader *fakeReader, cfg Config) *Notifier {
	t.Helper()
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = "changes"
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Millisecond
		cfg.MaxBackoff = 5 * time.Millisecond
	}
	n, err := New(cfg, WithReader(reader))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n
}

func runAsync(n *Notifier, ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- n.Run(ctx) }()
	return errc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Brokers: []string{"localhost:9092"}, Topic: "changes"}, false},
		{"missing brokers", Config{Topic: "changes"}, true},
		{"missing topic", Config{Brokers: []string{"localhost:9092"}}, true},
		{"bad start offset", Config{Brokers: []string{"localhost:9092"}, Topic: "changes", StartOffset: "middle"}, true},
		{"backoff inverted", Config{Brokers: []string{"localhost:9092"}, Topic: "changes", InitialBackoff: time.Minute, MaxBackoff: time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTargetOf(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"orders/1", "ignored", "orders/1"},
		{"", "orders", "orders"},
		{"  ", " orders/2 ", "orders/2"},
		{"", "", ""},
	}
	for _, tc := range tests {
		got := TargetOf(kafkago.Message{Key: []byte(tc.key), Value: []byte(tc.value)})
		if got != tc.want {
			t.Errorf("TargetOf(%q, %q): expected %q, got %q", tc.key, tc.value, tc.want, got)
		}
	}
}

func TestRunDispatches(t *testing.T) {
	reader := newFakeReader()
	n := newTest(t, reader, Config{})

	var orders, order1, invoices atomic.Int32
	for _, sub := range []struct {
		target string
		count  *atomic.Int32
	}{
		{"orders", &orders},
		{"orders/1", &order1},
		{"invoices", &invoices},
	} {
		c := sub.count
		s, err := n.Subscribe(sub.target, true, func() { c.Add(1) })
		if err != nil {
			t.Fatal(err)
		}
		defer s.Cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := runAsync(n, ctx)

	reader.send("orders/1", "")
	reader.send("", "orders")
	reader.send("", "")
	reader.send(AllTargets, "")

	waitFor(t, func() bool { return n.Stats().Dispatched == 3 })
	if st := n.Stats(); st.Messages != 4 {
		t.Errorf("expected 4 messages, got %+v", st)
	}
	if orders.Load() != 3 || order1.Load() != 3 || invoices.Load() != 1 {
		t.Errorf("unexpected counts orders=%d order1=%d invoices=%d", orders.Load(), order1.Load(), invoices.Load())
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("expected nil after cancel, got %v", err)
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	reader := newFakeReader()
	n := newTest(t, reader, Config{ReadAttempts: 3})

	var calls atomic.Int32
	s, _ := n.Subscribe("orders", false, func() { calls.Add(1) })
	defer s.Cancel()

	reader.fail(fmt.Errorf("broker not available"))
	reader.fail(fmt.Errorf("broker not available"))
	reader.send("orders", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := runAsync(n, ctx)

	waitFor(t, func() bool { return calls.Load() == 1 })
	if st := n.Stats(); st.Errors != 2 {
		t.Errorf("expected 2 read errors, got %+v", st)
	}

	reader.Close()
	if err := <-errc; err != nil {
		t.Errorf("expected nil after reader close, got %v", err)
	}
}

func TestRunGivesUp(t *testing.T) {
	reader := newFakeReader()
	n := newTest(t, reader, Config{ReadAttempts: 2})
	reader.fail(fmt.Errorf("broker not available"))
	reader.fail(fmt.Errorf("broker not available"))

	err := n.Run(context.Background())
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeExternalService {
		t.Fatalf("expected EXTERNAL_SERVICE_ERROR, got %v", err)
	}
	if st := n.Stats(); st.Errors != 2 {
		t.Errorf("expected 2 read errors, got %+v", st)
	}
}

func TestComponentLifecycle(t *testing.T) {
	reader := newFakeReader()
	n := newTest(t, reader, Config{})
	ctx := context.Background()

	if h := n.Health(ctx); h.Status != component.StatusUnhealthy || h.Message != "not started" {
		t.Errorf("expected not started, got %+v", h)
	}
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	s, _ := n.Subscribe("orders", true, func() { calls.Add(1) })
	defer s.Cancel()
	reader.send("orders/7", "")
	waitFor(t, func() bool { return calls.Load() == 1 })

	if h := n.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if err := n.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h := n.Health(ctx); h.Status != component.StatusUnhealthy || h.Message != "stopped" {
		t.Errorf("expected stopped, got %+v", h)
	}
	select {
	case <-reader.closed:
	default:
		t.Error("expected Stop to close the reader")
	}
}

func TestNewBuildsReader(t *testing.T) {
	n, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "changes"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if n.Name() != "kafka:changes" {
		t.Errorf("expected name 'kafka:changes', got %q", n.Name())
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
