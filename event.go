package wirebus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrDispatchStarted is returned when an Event is started more than once.
var ErrDispatchStarted = errors.New("dispatch already started")

// ErrNoActiveEvent is returned by CurrentEvent outside a handler invocation.
var ErrNoActiveEvent = errors.New("no active event: only available inside a dispatched handler")

type currentEventKey struct{}

// CurrentEvent returns the Event whose dispatch invoked the current handler.
// The event is available only for the dynamic extent of a handler call; any
// other context yields ErrNoActiveEvent.
//
// Example:
//
//	bus.Register("job.started", func(ctx context.Context, args ...any) (any, error) {
//	    evt, err := wirebus.CurrentEvent(ctx)
//	    if err != nil {
//	        return nil, err
//	    }
//	    evt.RequestCancel() // stop any handlers not yet submitted
//	    return nil, nil
//	})
func CurrentEvent(ctx context.Context) (*Event, error) {
	evt, ok := ctx.Value(currentEventKey{}).(*Event)
	if !ok {
		return nil, ErrNoActiveEvent
	}
	return evt, nil
}

// Event is one fan-out of a single call to the handlers resolved at call
// time. The handler snapshot is fixed when the event is built; registry
// changes never affect an in-flight event.
//
// An Event produces one Future per submitted handler. Handlers are submitted
// in snapshot order, but completion order depends entirely on the executor.
type Event struct {
	id       uuid.UUID
	handlers []Handler
	exec     Executor

	started   atomic.Bool
	cancelled atomic.Bool

	mu          sync.Mutex
	futures     []*Future
	completed   []*Future
	unexecuted  []Handler
	completedCh chan struct{}
}

// NewEvent builds an Event over a snapshot of resolved handlers and the
// executor that will run them. The event is inert until Start is called.
func NewEvent(handlers []Handler, exec Executor) *Event {
	return &Event{
		id:          uuid.New(),
		handlers:    handlers,
		exec:        exec,
		completedCh: make(chan struct{}),
	}
}

// ID returns the event's unique identifier, useful for log correlation.
func (e *Event) ID() uuid.UUID {
	return e.id
}

// Start submits every handler in the snapshot to the executor with the given
// arguments. It may be called at most once; later calls return
// ErrDispatchStarted and submit nothing.
//
// Each handler runs with the event published as the ambient current event
// (see CurrentEvent) for exactly the duration of the invocation. If the
// cancellation flag is set when a handler's turn comes, that handler is
// skipped entirely and recorded as unexecuted.
func (e *Event) Start(ctx context.Context, args ...any) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrDispatchStarted
	}

	hctx := context.WithValue(ctx, currentEventKey{}, e)

	for _, h := range e.handlers {
		if e.cancelled.Load() {
			e.mu.Lock()
			e.unexecuted = append(e.unexecuted, h)
			e.mu.Unlock()
			continue
		}

		f := e.exec.Submit(func() (any, error) {
			return h(hctx, args...)
		})

		e.mu.Lock()
		e.futures = append(e.futures, f)
		e.mu.Unlock()

		f.OnComplete(e.recordCompletion)
	}
	return nil
}

// RequestCancel sets the cancellation flag and attempts best-effort
// cancellation of every future submitted so far. Handlers not yet submitted
// will not be; handlers already running are unaffected.
func (e *Event) RequestCancel() {
	e.cancelled.Store(true)
	for _, f := range e.Futures() {
		f.Cancel()
	}
}

// Futures returns the submitted completion handles in submission order.
func (e *Event) Futures() []*Future {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Future, len(e.futures))
	copy(out, e.futures)
	return out
}

// CompletedFutures returns the handles that have become terminal so far
// (completed, failed, or cancelled), in completion order.
func (e *Event) CompletedFutures() []*Future {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Future, len(e.completed))
	copy(out, e.completed)
	return out
}

// Unexecuted returns the handlers skipped because cancellation was requested
// before they were submitted.
func (e *Event) Unexecuted() []Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Handler, len(e.unexecuted))
	copy(out, e.unexecuted)
	return out
}

// FirstResult waits for the first handle to complete without being
// cancelled and returns its value, or its error if the handler failed.
// Cancelled handles are skipped and waiting continues. When the timeout
// elapses first, or every handle is terminal with nothing usable, both
// return values are nil. A zero timeout polls; Forever waits indefinitely.
func (e *Event) FirstResult(timeout time.Duration) (any, error) {
	var timeoutC <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	for {
		wakeup := e.completionSignal()

		for _, f := range e.CompletedFutures() {
			if !f.Cancelled() {
				return f.Result()
			}
		}
		if e.allTerminal() {
			return nil, nil
		}

		select {
		case <-wakeup:
		case <-timeoutC:
			return nil, nil
		}
	}
}

// AwaitAll waits until every submitted handle is terminal or the timeout
// elapses, then returns the completed, non-cancelled handles. Handler
// failures are never surfaced here; retrieve them per handle via Result.
func (e *Event) AwaitAll(timeout time.Duration) []*Future {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for _, f := range e.Futures() {
		if timeout < 0 {
			f.Wait(Forever)
			continue
		}
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		f.Wait(remaining)
	}

	var out []*Future
	for _, f := range e.CompletedFutures() {
		if !f.Cancelled() {
			out = append(out, f)
		}
	}
	return out
}

// recordCompletion appends the handle to the completion-order list and wakes
// any waiters. Registered as each future's OnComplete callback.
func (e *Event) recordCompletion(f *Future) {
	e.mu.Lock()
	e.completed = append(e.completed, f)
	close(e.completedCh)
	e.completedCh = make(chan struct{})
	e.mu.Unlock()
}

// completionSignal returns a channel closed at the next completion. Callers
// grab it before scanning completed handles so no wakeup is missed.
func (e *Event) completionSignal() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completedCh
}

func (e *Event) allTerminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.completed) == len(e.futures)
}
