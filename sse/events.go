package sse

// Event type constants written on the "event:" line of the stream.
const (
	// EventTypeConnected is sent when a client successfully connects.
	EventTypeConnected = "connected"

	// EventTypeState carries a published flow result.
	EventTypeState = "state"

	// EventTypeError is sent when an error occurs.
	EventTypeError = "error"
)

// Event is one server-sent event.
type Event struct {
	Type string
	Data []byte
}
