package source

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/queryflow/errors"
	"github.com/kbukum/queryflow/logger"
)

// Hub is a Notifier backed by an in-process listener table. Concrete sources
// embed one and call Notify when they observe a change.
//
// Targets are hierarchical, separated by "/". A change to "orders/42"
// reaches listeners on "orders/42", and listeners on "orders" that asked for
// descendants. A change to "orders" also reaches listeners on "orders/42".
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]*listener
	log       *logger.Logger
}

type listener struct {
	target      string
	descendants bool
	fn          func()
}

// NewHub creates an empty listener hub. The name tags its log lines.
func NewHub(name string) *Hub {
	return &Hub{
		listeners: make(map[string]*listener),
		log:       logger.Get(name),
	}
}

// Subscribe registers listener for changes to target.
func (h *Hub) Subscribe(target string, notifyForDescendants bool, fn func()) (Subscription, error) {
	if target == "" {
		return nil, errors.MissingField("target")
	}
	if fn == nil {
		return nil, errors.InvalidInput("listener", "listener must not be nil")
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.listeners[id] = &listener{target: target, descendants: notifyForDescendants, fn: fn}
	n := len(h.listeners)
	h.mu.Unlock()

	h.log.Debug("listener subscribed", logger.Fields(
		logger.FieldTarget, target,
		"descendants", notifyForDescendants,
		logger.FieldSubscribers, n,
	))
	return &hubSubscription{hub: h, id: id}, nil
}

// Notify calls every listener affected by a change to target. Listeners run
// on the caller's goroutine, outside the hub lock.
func (h *Hub) Notify(target string) int {
	h.mu.RLock()
	fns := make([]func(), 0, len(h.listeners))
	for _, l := range h.listeners {
		if Affects(target, l.target, l.descendants) {
			fns = append(fns, l.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// NotifyAll calls every listener, for changes whose scope is unknown.
func (h *Hub) NotifyAll() int {
	h.mu.RLock()
	fns := make([]func(), 0, len(h.listeners))
	for _, l := range h.listeners {
		fns = append(fns, l.fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Targets returns the distinct targets that currently have listeners.
func (h *Hub) Targets() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool, len(h.listeners))
	out := make([]string, 0, len(h.listeners))
	for _, l := range h.listeners {
		if !seen[l.target] {
			seen[l.target] = true
			out = append(out, l.target)
		}
	}
	return out
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	l, ok := h.listeners[id]
	delete(h.listeners, id)
	n := len(h.listeners)
	h.mu.Unlock()
	if ok {
		h.log.Debug("listener cancelled", logger.Fields(logger.FieldTarget, l.target, logger.FieldSubscribers, n))
	}
}

type hubSubscription struct {
	hub  *Hub
	id   string
	once sync.Once
}

func (s *hubSubscription) Cancel() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

// Affects reports whether a change to changed concerns a listener registered
// on subscribed.
func Affects(changed, subscribed string, descendants bool) bool {
	switch {
	case changed == subscribed:
		return true
	case descendants && strings.HasPrefix(changed, subscribed+"/"):
		return true
	case strings.HasPrefix(subscribed, changed+"/"):
		return true
	}
	return false
}
