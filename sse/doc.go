// Package sse provides Server-Sent Events support for streaming flow state to
// HTTP clients.
//
// Each client holds a one-slot conflating buffer: a slow client skips
// straight to the most recent event and never sees events out of order,
// which matches the latest-value semantics of a flow.
//
// # Architecture
//
//   - Hub: event loop owning the client set, broadcasting by glob pattern
//   - Client: one connection with its conflating event slot
//   - ServeSSE: HTTP handler body that registers a client and streams events
//   - Component: lifecycle wrapper running the hub loop
//
// # Usage
//
//	hub := sse.NewHub()
//	go hub.Run()
//	router.GET("/stream", func(c *gin.Context) {
//	    sse.ServeSSE(hub, c.Writer, c.Request, "orders:"+uuid.NewString())
//	})
//	hub.BroadcastToPattern("orders:*", sse.Event{Type: sse.EventTypeState, Data: payload})
package sse
