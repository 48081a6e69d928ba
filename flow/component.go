package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/source"
)

// Component runs a flow under a component.Registry. The flow is created on
// Start and shut down on Stop.
type Component[T any] struct {
	name      string
	src       source.Source
	cfg       Config
	transform Transform[T]
	opts      []Option

	mu   sync.RWMutex
	flow *Flow[T]
}

var _ component.Component = (*Component[struct{}])(nil)

// NewComponent returns a component that starts a flow from cfg.
func NewComponent[T any](src source.Source, cfg Config, transform Transform[T], opts ...Option) *Component[T] {
	cfg.ApplyDefaults()
	return &Component[T]{
		name:      "flow:" + cfg.Name,
		src:       src,
		cfg:       cfg,
		transform: transform,
		opts:      opts,
	}
}

// Name returns "flow:<flow name>".
func (c *Component[T]) Name() string { return c.name }

// Start creates the flow. Starting a running component is a no-op.
func (c *Component[T]) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flow != nil {
		select {
		case <-c.flow.Done():
		default:
			return nil
		}
	}
	f, err := NewFromConfig(c.src, c.cfg, c.transform, c.opts...)
	if err != nil {
		return err
	}
	c.flow = f
	return nil
}

// Stop shuts the flow down.
func (c *Component[T]) Stop(ctx context.Context) error {
	c.mu.RLock()
	f := c.flow
	c.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f.Shutdown(ctx)
}

// Flow returns the running flow, or an error before Start.
func (c *Component[T]) Flow() (*Flow[T], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.flow == nil {
		return nil, errors.ServiceUnavailable(c.name)
	}
	return c.flow, nil
}

// Health is healthy while the published state is a Success and degraded
// while it is a Failure.
func (c *Component[T]) Health(_ context.Context) component.Health {
	h := component.Health{Name: c.name}
	f, err := c.Flow()
	if err != nil {
		h.Status = component.StatusUnhealthy
		h.Message = "not started"
		return h
	}
	select {
	case <-f.Done():
		h.Status = component.StatusUnhealthy
		h.Message = "stopped"
		return h
	default:
	}
	r := f.State().Value()
	if r.IsFailure() {
		h.Status = component.StatusDegraded
		h.Message = r.Err().Error()
		return h
	}
	h.Status = component.StatusHealthy
	h.Message = fmt.Sprintf("%d items", len(r.Items()))
	return h
}
