package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/queryflow/logger"
)

// KeepAliveInterval is how often an idle stream writes a comment line.
// It should stay below typical proxy idle timeouts (60s).
var KeepAliveInterval = 30 * time.Second

// ConnectedEvent is sent when a client successfully connects.
type ConnectedEvent struct {
	ClientID string            `json:"client_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WriteEvent writes ev in SSE wire format. Multi-line data is split into
// one "data:" line per line.
func WriteEvent(w http.ResponseWriter, ev Event) error {
	if ev.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
			return err
		}
	}
	start := 0
	for i, b := range ev.Data {
		if b == '\n' {
			if _, err := fmt.Fprintf(w, "data: %s\n", ev.Data[start:i]); err != nil {
				return err
			}
			start = i + 1
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data[start:])
	return err
}

// ServeSSE handles an SSE connection for a specific client.
// It returns when the request context ends or the hub stops.
func ServeSSE(hub *Hub, w http.ResponseWriter, r *http.Request, clientID string, opts ...ClientOption) {
	log := logger.Get("sse").WithContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported", logger.Fields("client_id", clientID))
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Long-lived stream: the server's WriteTimeout must not cut it off.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not disable write deadline", logger.MergeWithError(logger.Fields("client_id", clientID), err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := NewClient(clientID, opts...)
	if !hub.Register(client) {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	connected, _ := json.Marshal(ConnectedEvent{ClientID: clientID, Metadata: client.Metadata()})
	_ = WriteEvent(w, Event{Type: EventTypeConnected, Data: connected})
	flusher.Flush()

	log.Debug("client connected", logger.Fields("client_id", clientID, "remote_addr", r.RemoteAddr))

	keepAlive := time.NewTicker(KeepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected", logger.Fields("client_id", clientID, "reason", ctx.Err().Error()))
			return

		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			if err := WriteEvent(w, ev); err != nil {
				log.Debug("write failed", logger.MergeWithError(logger.Fields("client_id", clientID), err))
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
