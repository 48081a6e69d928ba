package pollnotify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/flow"
	"github.com/kbukum/queryflow/source"
	"github.com/kbukum/queryflow/source/memsource"
)

func TestNewRejectsInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if _, err := New(Config{Interval: d}); err == nil {
			t.Errorf("expected error for interval %v", d)
		}
	}
}

func TestRunFiresEveryInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Unix(0, 0))
	n, err := New(Config{Interval: time.Minute}, WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}

	var a, b atomic.Int32
	sa, _ := n.Subscribe("orders", false, func() { a.Add(1) })
	sb, _ := n.Subscribe("invoices/1", false, func() { b.Add(1) })
	defer sb.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	for i := 1; i <= 3; i++ {
		if err := clk.WaitAdvance(time.Minute, time.Second, 1); err != nil {
			t.Fatal(err)
		}
		deadline := time.Now().Add(time.Second)
		for n.Ticks() < int64(i) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
	if a.Load() != 3 || b.Load() != 3 {
		t.Errorf("expected 3 notifications each, got %d and %d", a.Load(), b.Load())
	}

	sa.Cancel()
	if err := clk.WaitAdvance(time.Minute, time.Second, 1); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for n.Ticks() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if a.Load() != 3 || b.Load() != 4 {
		t.Errorf("expected cancelled listener to stop at 3, got %d and %d", a.Load(), b.Load())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestComponentLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, err := New(Config{Interval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if h := n.Health(ctx); h.Message != "not started" {
		t.Errorf("expected not started, got %+v", h)
	}
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if h := n.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if err := n.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if h := n.Health(ctx); h.Status != component.StatusUnhealthy || h.Message != "stopped" {
		t.Errorf("expected stopped, got %+v", h)
	}
}

func TestPollingDrivesFlow(t *testing.T) {
	clk := testclock.NewClock(time.Unix(0, 0))
	poll, err := New(Config{Interval: time.Second}, WithClock(clk))
	if err != nil {
		t.Fatal(err)
	}

	// Rows written directly to the table never notify listeners on the
	// composed source; only the poll does.
	mem := memsource.New()
	if err := mem.CreateTable("orders", "id"); err != nil {
		t.Fatal(err)
	}
	src := source.Compose(mem, poll)

	f, err := flow.New(src, source.Query{Target: "orders"},
		func(c source.Cursor) ([]int, error) {
			var ids []int
			for c.Next() {
				var id int
				if err := c.Scan(&id); err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}
			return ids, c.Err()
		},
		flow.WithThrottleWindow(0),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poll.Run(ctx)

	if err := mem.Insert("orders", map[string]any{"id": 1}); err != nil {
		t.Fatal(err)
	}
	if err := clk.WaitAdvance(time.Second, time.Second, 1); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.State().Value().Items()) != 1 || mem.Queries() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected the poll to publish one row, got %v", f.State().Value())
		}
		time.Sleep(time.Millisecond)
	}
}
