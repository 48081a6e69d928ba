package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/queryflow/component"
)

// Component wraps an SSE Hub as a lifecycle-managed component.
type Component struct {
	name    string
	hub     *Hub
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

var _ component.Component = (*Component)(nil)

// NewComponent creates a new SSE component with a fresh Hub.
func NewComponent(name string) *Component {
	return &Component{
		name: name,
		hub:  NewHub(),
	}
}

// Hub returns the underlying Hub for event broadcasting and client management.
func (c *Component) Hub() *Hub { return c.hub }

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Start launches the Hub's event loop in a background goroutine.
// Starting twice is a no-op.
func (c *Component) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.started = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.hub.Run()
	}()

	return nil
}

// Stop signals the Hub to shut down and waits for Run to return or ctx to end.
func (c *Component) Stop(ctx context.Context) error {
	c.hub.Stop()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health returns the health status of the SSE hub.
func (c *Component) Health(_ context.Context) component.Health {
	select {
	case <-c.hub.Done():
		return component.Health{Name: c.name, Status: component.StatusUnhealthy, Message: "stopped"}
	default:
	}
	return component.Health{
		Name:    c.name,
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d clients connected", c.hub.GetClientCount()),
	}
}
