package wirebus

import (
	"errors"
	"sync"
	"time"
)

// ErrPending is returned by Future.Result before the future is terminal.
var ErrPending = errors.New("future not yet complete")

// ErrCancelled is returned by Future.Result after a successful cancellation.
var ErrCancelled = errors.New("future cancelled")

// Forever waits without a deadline when passed as a timeout.
const Forever time.Duration = -1

// Future is the completion handle returned by an Executor.
//
// A future is terminal once its task has returned, panicked, or been
// cancelled before starting. Waiting never cancels the underlying task:
// timeouts bound the caller's patience only.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	started   bool
	finished  bool
	cancelled bool
	result    any
	err       error
	callbacks []func(*Future)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel closed when the future becomes terminal.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future is terminal or the timeout elapses, and
// reports whether it is terminal. A zero timeout polls; Forever (any
// negative duration) waits indefinitely.
func (f *Future) Wait(timeout time.Duration) bool {
	if timeout < 0 {
		<-f.done
		return true
	}
	select {
	case <-f.done:
		return true
	default:
	}
	if timeout == 0 {
		return false
	}
	select {
	case <-f.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Result returns the task's value or its error. Before completion it returns
// ErrPending; after cancellation, ErrCancelled.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.cancelled:
		return nil, ErrCancelled
	case !f.finished:
		return nil, ErrPending
	}
	return f.result, f.err
}

// Cancel attempts best-effort cancellation. It succeeds only if the task has
// not started executing; a cancelled future is terminal with ErrCancelled.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	if f.started || f.finished {
		f.mu.Unlock()
		return false
	}
	f.cancelled = true
	f.finished = true
	close(f.done)
	cbs := f.takeCallbacks()
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(f)
	}
	return true
}

// Cancelled reports whether the future was cancelled before its task ran.
func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// OnComplete registers fn to run once, when the future becomes terminal
// (completed, failed, or cancelled). If it already is, fn runs immediately
// on the calling goroutine.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if !f.finished {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}

// begin marks the task as executing. It reports false when the future was
// cancelled first, in which case the task must not run.
func (f *Future) begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return false
	}
	f.started = true
	return true
}

// complete records the task's outcome and fires completion callbacks.
func (f *Future) complete(result any, err error) {
	f.mu.Lock()
	if f.finished {
		f.mu.Unlock()
		return
	}
	f.result = result
	f.err = err
	f.finished = true
	close(f.done)
	cbs := f.takeCallbacks()
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(f)
	}
}

// takeCallbacks detaches pending callbacks. Callers hold f.mu; the callbacks
// themselves run unlocked.
func (f *Future) takeCallbacks() []func(*Future) {
	cbs := f.callbacks
	f.callbacks = nil
	return cbs
}
