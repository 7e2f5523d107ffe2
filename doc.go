// Package wirebus provides an in-process publish/subscribe event bus with
// hierarchical topic patterns, weak handler registration, and pluggable
// execution.
//
// Producers call a dot-separated pattern (e.g. "foo.bar"); the bus resolves
// every registered handler whose pattern matches, fans the call out to an
// executor, and returns an Event for observing completion, cancellation, and
// results.
//
// # Quick Start
//
// Register handlers and call them through a filter:
//
//	bus, err := wirebus.New()
//	if err != nil {
//	    return err
//	}
//
//	bus.Register("order.created", func(ctx context.Context, args ...any) (any, error) {
//	    return processOrder(args[0])
//	})
//	bus.Register("order.shipped", func(ctx context.Context, args ...any) (any, error) {
//	    return notifyCustomer(args[0])
//	})
//
//	evt := bus.WithFilter("order.*").Call(ctx, order)
//	for _, f := range evt.AwaitAll(time.Second) {
//	    result, err := f.Result()
//	    ...
//	}
//
// # Patterns
//
// Patterns are components joined by a separator (default '.'). "*" matches
// within a single component; "**" matches any number of components. With
// WithWildcardKeys, wildcards may also appear in registration patterns, and
// matching becomes bidirectional: a registration under "order.*" is found by
// a call to "order.created". Matching a wildcard call against a wildcard
// registration (both sides wildcarded) is unsupported.
//
// # Ownership
//
// Register holds the handler strongly. RegisterWeak and RegisterBound hold
// it weakly: when the observed handler variable or owner object becomes
// unreachable, the registration expires and is evicted from the bus
// automatically. Bound registrations survive as long as their owner does,
// which ties a subscription's lifetime to the subscribing object with no
// explicit teardown call.
//
// # Execution
//
// The Executor abstraction decides where handlers run. The default
// SyncExecutor runs them inline on the caller's goroutine; PoolExecutor runs
// them on a fixed worker pool over a bounded queue. Either way every handler
// yields a Future supporting polling, timed waits, best-effort cancellation,
// and completion callbacks. One handler's failure never affects its
// siblings; it surfaces only when that handler's Result is retrieved.
//
// # Events
//
// Each call produces an Event over the handlers resolved at call time.
// Events expose the submitted Futures, the completion-order list,
// FirstResult and AwaitAll aggregate waits, and cooperative cancellation:
// RequestCancel prevents not-yet-submitted handlers from running and
// attempts to cancel the rest. Inside a handler, CurrentEvent(ctx) returns
// the event that invoked it.
//
// # Ingestion
//
// Ingest bridges raw JSON messages onto the bus, extracting the dispatch
// topic and payload from configurable fields. See Ingest for details.
package wirebus
