package sse

// Broadcaster is an interface for broadcasting events to clients.
// This allows handlers to depend on an abstraction rather than a concrete Hub.
type Broadcaster interface {
	// BroadcastToPattern sends ev to all clients whose ID matches pattern.
	// Pattern uses glob-style matching (e.g., "orders:*" or "orders:abc123").
	BroadcastToPattern(pattern string, ev Event)
}
