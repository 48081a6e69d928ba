// Package httpapi exposes flows over HTTP with gin.
//
// Register mounts three routes for one flow on a gin router group:
//
//	GET  /state    current result as JSON
//	POST /refresh  requests a re-query, answers 202
//	GET  /stream   server-sent events, one "state" event per published result
//
// Streaming requires an sse.Hub passed with WithHub; the hub must be running
// (see sse.Component) for broadcasts to reach clients.
//
//	hub := sse.NewComponent("streams")
//	_ = registry.Register(hub)
//	h := httpapi.Register(engine.Group("/flows/orders"), ordersFlow,
//	    httpapi.WithHub(hub.Hub()),
//	    httpapi.WithRateLimiter(resilience.NewRateLimiter(resilience.DefaultRateLimiterConfig("orders-refresh"))),
//	)
//	defer h.Close()
package httpapi
