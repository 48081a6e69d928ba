// Package resilience provides patterns for building fault-tolerant systems.
//
// This package includes:
//   - CircuitBreaker: Prevents cascading failures by failing fast
//   - Retry: Retries failed operations with exponential backoff
//   - Bulkhead: Limits concurrent access to isolate failures
//   - RateLimiter: Controls request rate with token bucket algorithm
//
// Every pattern reads time from a github.com/juju/clock Clock, so tests can
// drive backoffs, open-circuit timeouts and token refill with testclock.
//
// Within queryflow a Bulkhead bounds concurrent flow queries, Retry covers
// notifier connection setup, a CircuitBreaker guards remote listing calls and
// a RateLimiter caps manual refresh requests:
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "queries", MaxConcurrent: 4})
//	f, err := flow.New(src, query, transform, flow.WithBulkhead(bh))
package resilience
