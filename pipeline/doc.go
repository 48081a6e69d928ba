// Package pipeline provides composable, pull-based data pipeline operators.
//
// Pipelines are lazy: no work happens until values are pulled via Collect,
// Drain, or ForEach. Each stage pulls from the previous stage on demand,
// providing natural backpressure without explicit flow control.
//
// # Operators
//
// Synchronous (single-goroutine):
//
//   - Map: transform each value
//   - Filter: keep values matching a predicate
//   - Tap: side-effect without altering the value (logging, metrics, mid-pipeline publish)
//   - Distinct: drop a value equal to the one forwarded before it
//
// Time-based (one upstream goroutine per iterator):
//
//   - Throttle: at most one value per window, first and latest of a burst
//
// Throttle reads time from a github.com/juju/clock Clock, so tests can drive it
// with testclock instead of sleeping.
//
// # Usage
//
//	src := pipeline.FromSlice([]int{1, 2, 3, 4, 5})
//	doubled := pipeline.Map(src, func(_ context.Context, n int) (int, error) {
//	    return n * 2, nil
//	})
//	evens := pipeline.Filter(doubled, func(n int) bool { return n%2 == 0 })
//	results, _ := pipeline.Collect(ctx, evens)
//
// Channel driven:
//
//	events := pipeline.FromChannel(triggers)
//	loaded := pipeline.Map(events, load)
//	changed := pipeline.Distinct(loaded, sameSnapshot)
//	limited := pipeline.Throttle(changed, time.Second)
//	pipeline.Drain(limited, publish).Run(ctx)
package pipeline
