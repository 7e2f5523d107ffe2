package wirebus

import (
	"context"
)

// Dispatcher turns calls into dispatched Events. It binds three things: the
// reference registry, a filter pattern selecting which registrations a call
// fans out to, and the executor that runs the matched handlers.
//
// Dispatchers are immutable values; WithFilter and WithExecutor derive new
// ones sharing the same registry. No Dispatcher operation mutates the
// registry.
type Dispatcher struct {
	refs    *GlobMap[*refSet]
	pattern string
	exec    Executor
}

// Call resolves every reference registered under a pattern matching the
// dispatcher's filter, fans the arguments out to the executor, and returns
// the Event already dispatching. Expired weak references are silently
// dropped from the fan-out.
func (d Dispatcher) Call(ctx context.Context, args ...any) *Event {
	evt := NewEvent(d.resolveHandlers(), d.exec)
	// A fresh event cannot have been started.
	_ = evt.Start(ctx, args...)
	return evt
}

// WithFilter returns a Dispatcher with the same registry and executor but a
// different filter pattern.
func (d Dispatcher) WithFilter(pattern string) Dispatcher {
	return Dispatcher{refs: d.refs, pattern: pattern, exec: d.exec}
}

// WithExecutor returns a Dispatcher with the same registry and filter but a
// different executor.
func (d Dispatcher) WithExecutor(exec Executor) Dispatcher {
	return Dispatcher{refs: d.refs, pattern: d.pattern, exec: exec}
}

// Filter returns the dispatcher's filter pattern.
func (d Dispatcher) Filter() string {
	return d.pattern
}

// resolveHandlers snapshots the handlers behind every registration matching
// the filter, in registration order within each matched set.
func (d Dispatcher) resolveHandlers() []Handler {
	var handlers []Handler
	for _, set := range d.refs.Glob(d.pattern) {
		for _, ref := range set.snapshot() {
			if h, ok := ref.Resolve(); ok {
				handlers = append(handlers, h)
			}
		}
	}
	return handlers
}
