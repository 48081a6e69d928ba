// Package flow observes a query on a changing data source and publishes
// its latest result.
//
// A Flow merges change notifications from the source with manual Refresh
// calls into one trigger, runs the query for each trigger, drops results
// equal to the previous one and throttles the rest before publishing them
// to its State:
//
//	triggers -> query -> dedup -> throttle -> State
//
// Query failures are published as Failure results and never stop the flow.
//
//	f, err := flow.New(src, source.Query{Target: "orders"}, toOrders,
//	    flow.WithThrottleWindow(250*time.Millisecond))
//	if err != nil {
//	    return err
//	}
//	defer f.Shutdown(context.Background())
//
//	updates, cancel := f.State().Subscribe()
//	defer cancel()
//	for r := range updates {
//	    ...
//	}
package flow
