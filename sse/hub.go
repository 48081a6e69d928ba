package sse

import (
	"path/filepath"
	"sync"

	"github.com/kbukum/queryflow/logger"
)

// Client represents a connected SSE client.
type Client struct {
	id       string            // Unique client ID, "<flow>:<uuid>" by convention
	metadata map[string]string // Optional metadata (remote address, flow name, ...)
	events   chan Event        // One-slot conflating buffer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetadata adds a metadata key-value pair to the client.
func WithMetadata(key, value string) ClientOption {
	return func(c *Client) {
		if c.metadata == nil {
			c.metadata = make(map[string]string)
		}
		c.metadata[key] = value
	}
}

// WithInitialEvent queues ev before the client is registered, so it is the
// first event streamed after the connected event.
func WithInitialEvent(ev Event) ClientOption {
	return func(c *Client) {
		c.Send(ev)
	}
}

// NewClient creates a new SSE client with optional metadata.
func NewClient(id string, opts ...ClientOption) *Client {
	c := &Client{
		id:       id,
		metadata: make(map[string]string),
		events:   make(chan Event, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Metadata returns all client metadata.
func (c *Client) Metadata() map[string]string {
	return c.metadata
}

// GetMetadata returns a specific metadata value.
func (c *Client) GetMetadata(key string) string {
	return c.metadata[key]
}

// Events returns the channel for receiving events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Send delivers ev, replacing an undelivered older event if the client has
// not caught up. It reports whether an older event was replaced.
// Only one goroutine may send to a client at a time.
func (c *Client) Send(ev Event) (conflated bool) {
	for {
		select {
		case c.events <- ev:
			return conflated
		default:
		}
		select {
		case <-c.events:
			conflated = true
		default:
		}
	}
}

// Close closes the client's event channel.
func (c *Client) Close() {
	close(c.events)
}

// Hub manages SSE client connections and message broadcasting.
type Hub struct {
	clients    map[string]*Client // client ID -> Client
	register   chan *Client       // Channel for registering clients
	unregister chan *Client       // Channel for unregistering clients
	broadcast  chan *Message      // Channel for broadcasting messages
	done       chan struct{}      // Signals the hub to stop
	stopped    bool               // Whether the hub has been stopped
	mu         sync.RWMutex       // Protects clients map for reads during matching
}

// Message represents a message to broadcast.
type Message struct {
	Pattern string // Glob pattern for matching clients
	Event   Event  // Event to send
}

// NewHub creates a new SSE hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop.
// It blocks until Stop is called. This should be run in a goroutine.
func (h *Hub) Run() {
	log := logger.Get("sse")
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug("client registered", logger.Fields("client_id", client.id, logger.FieldSubscribers, total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug("client unregistered", logger.Fields("client_id", client.id, logger.FieldSubscribers, total))

		case msg := <-h.broadcast:
			h.broadcastWithPattern(msg.Pattern, msg.Event)
		}
	}
}

// Stop signals the hub to shut down. It closes all client connections
// and causes Run to return. Safe to call multiple times.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

// Done is closed once Stop has been called.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// closeAllClients disconnects all clients during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
	logger.Get("sse").Debug("all clients closed during shutdown")
}

// Register adds a client to the hub. It returns false, and closes the
// client, if the hub has already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		client.Close()
		return false
	}
}

// Unregister removes a client from the hub. A stopped hub has already
// closed every client, so this is a no-op after Stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToPattern sends ev to all clients matching the pattern.
// Pattern uses glob-style matching (e.g., "orders:*" or "orders:abc123").
// Events broadcast after Stop are discarded.
func (h *Hub) BroadcastToPattern(pattern string, ev Event) {
	select {
	case h.broadcast <- &Message{Pattern: pattern, Event: ev}:
	case <-h.done:
	}
}

// broadcastWithPattern sends ev to matching clients.
// This is called from the hub's main goroutine.
func (h *Hub) broadcastWithPattern(pattern string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log := logger.Get("sse")
	matchCount := 0
	for clientID, client := range h.clients {
		matched, err := filepath.Match(pattern, clientID)
		if err != nil {
			log.Error("pattern match error", logger.MergeWithError(logger.Fields("pattern", pattern), err))
			return
		}
		if !matched {
			continue
		}
		if client.Send(ev) {
			log.Debug("slow client skipped an event", logger.Fields("client_id", clientID))
		}
		matchCount++
	}

	log.Debug("broadcast sent", logger.Fields(
		"pattern", pattern,
		"event", ev.Type,
		"match_count", matchCount,
		"data_size", len(ev.Data),
	))
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClientIDs returns a list of all connected client IDs.
func (h *Hub) GetClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// GetClient returns a client by ID, or nil if not found.
func (h *Hub) GetClient(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Ensure Hub implements Broadcaster.
var _ Broadcaster = (*Hub)(nil)
