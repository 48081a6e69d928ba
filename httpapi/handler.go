package httpapi

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/flow"
	"github.com/kbukum/queryflow/logger"
	"github.com/kbukum/queryflow/resilience"
	"github.com/kbukum/queryflow/sse"
)

// HeaderFlowID carries the flow instance id on every response.
const HeaderFlowID = "X-Flow-Id"

// Option configures a Handler.
type Option func(*options)

type options struct {
	hub     *sse.Hub
	limiter *resilience.RateLimiter
	log     *logger.Logger
}

// WithHub enables GET /stream, broadcasting published results through hub.
func WithHub(hub *sse.Hub) Option {
	return func(o *options) { o.hub = hub }
}

// WithRateLimiter bounds POST /refresh. Rejected requests get 429.
func WithRateLimiter(l *resilience.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithLogger sets the handler logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// StateResponse is the body of GET /state.
type StateResponse[T any] struct {
	Flow   string         `json:"flow"`
	ID     string         `json:"id"`
	Result flow.Result[T] `json:"result"`
}

// RefreshResponse is the body of an accepted POST /refresh.
type RefreshResponse struct {
	Flow   string `json:"flow"`
	Status string `json:"status"`
}

// Handler serves one flow.
type Handler[T any] struct {
	flow    *flow.Flow[T]
	hub     *sse.Hub
	limiter *resilience.RateLimiter
	log     *logger.Logger
	pattern string

	cancel    func()
	done      chan struct{}
	closeOnce sync.Once
}

var globMeta = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

// Register mounts the flow routes on r and, when a hub is configured,
// starts forwarding published results to stream clients until Close or
// flow shutdown.
func Register[T any](r gin.IRoutes, f *flow.Flow[T], opts ...Option) *Handler[T] {
	o := options{log: logger.Get("httpapi")}
	for _, opt := range opts {
		opt(&o)
	}

	h := &Handler[T]{
		flow:    f,
		hub:     o.hub,
		limiter: o.limiter,
		log:     o.log.WithFlow(f.Name()),
		pattern: globMeta.Replace(f.Name()) + ":*",
		done:    make(chan struct{}),
	}

	r.GET("/state", h.state)
	r.POST("/refresh", h.refresh)

	if h.hub == nil {
		h.cancel = func() {}
		close(h.done)
		return h
	}
	r.GET("/stream", h.stream)

	ch, cancel := f.State().Subscribe()
	h.cancel = cancel
	go h.pump(ch)
	return h
}

// Close stops forwarding results to the hub. Routes stay mounted.
func (h *Handler[T]) Close() {
	h.closeOnce.Do(h.cancel)
	<-h.done
}

func (h *Handler[T]) state(c *gin.Context) {
	c.Header(HeaderFlowID, h.flow.ID())
	RespondOK(c, StateResponse[T]{
		Flow:   h.flow.Name(),
		ID:     h.flow.ID(),
		Result: h.flow.State().Value(),
	})
}

func (h *Handler[T]) refresh(c *gin.Context) {
	c.Header(HeaderFlowID, h.flow.ID())
	if h.flow.Closed() {
		RespondWithError(c, errors.Closed("flow "+h.flow.Name()))
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		RespondWithError(c, errors.RateLimited())
		return
	}
	h.flow.Refresh()
	RespondAccepted(c, RefreshResponse{Flow: h.flow.Name(), Status: "accepted"})
}

func (h *Handler[T]) stream(c *gin.Context) {
	c.Header(HeaderFlowID, h.flow.ID())
	if h.flow.Closed() {
		RespondWithError(c, errors.Closed("flow "+h.flow.Name()))
		return
	}
	data, err := json.Marshal(h.flow.State().Value())
	if err != nil {
		RespondWithError(c, errors.Internal(err))
		return
	}

	// Streams end with the flow.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		select {
		case <-h.flow.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	sse.ServeSSE(h.hub, c.Writer, c.Request.WithContext(ctx), h.flow.Name()+":"+uuid.NewString(),
		sse.WithInitialEvent(sse.Event{Type: sse.EventTypeState, Data: data}),
		sse.WithMetadata("flow", h.flow.Name()),
		sse.WithMetadata("flow_id", h.flow.ID()),
	)
}

// pump forwards every published result until the subscription closes.
func (h *Handler[T]) pump(ch <-chan flow.Result[T]) {
	defer close(h.done)
	for r := range ch {
		data, err := json.Marshal(r)
		if err != nil {
			h.log.Error("encode result failed", logger.MergeWithError(nil, err))
			continue
		}
		h.hub.BroadcastToPattern(h.pattern, sse.Event{Type: sse.EventTypeState, Data: data})
	}
	h.log.Debug("stream forwarding stopped")
}
