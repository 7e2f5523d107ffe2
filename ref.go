package wirebus

import (
	"context"
	"reflect"
	"runtime"
	"sync/atomic"
	"weak"
)

// Handler is a registered unit of work. Handlers receive the arguments given
// to Dispatcher.Call and may return a result or an error; both are carried on
// the handler's Future and never abort sibling handlers.
type Handler func(ctx context.Context, args ...any) (any, error)

// Ref is a strong or weak reference to a registered Handler.
//
// Resolve yields an invocable handler, or reports false once the reference
// has expired. Hash is an identity hash stable for the reference's lifetime,
// including after expiry, so references remain usable as set members.
type Ref interface {
	Resolve() (Handler, bool)
	Hash() uint64
}

// ExpireFunc is notified when a weak reference becomes permanently
// unresolvable. It is invoked at most once, from the runtime's cleanup
// goroutine; panics are swallowed since a failure here must never reach the
// mutation that triggered collection.
type ExpireFunc func(*WeakRef)

// StrongRef owns its handler: the handler stays reachable for as long as the
// reference does.
type StrongRef struct {
	h    Handler
	hash uint64
}

// NewStrongRef builds a strong reference to h.
func NewStrongRef(h Handler) *StrongRef {
	return &StrongRef{h: h, hash: uint64(reflect.ValueOf(h).Pointer())}
}

// Resolve returns the handler the reference was built with. It reports false
// only when the reference was built around a nil handler.
func (r *StrongRef) Resolve() (Handler, bool) {
	return r.h, r.h != nil
}

// Hash returns the reference's identity hash.
func (r *StrongRef) Hash() uint64 {
	return r.hash
}

// WeakRef observes a handler without keeping it alive.
//
// Two forms exist. NewWeakRef observes a *Handler directly: once nothing else
// keeps that pointer alive, the reference expires. NewBoundWeakRef observes
// an owner object and holds the unbound method separately; resolution
// reconstructs the bound call by applying the still-live owner, and the
// reference expires when the owner is collected.
//
// Either way, expiry is permanent: Resolve reports false forever after, and
// the optional ExpireFunc fires exactly once.
type WeakRef struct {
	resolve func() (Handler, bool)
	hash    uint64

	onExpire ExpireFunc
	expired  atomic.Bool
}

// NewWeakRef builds a weak reference observing the handler stored at h.
//
// Go cannot weakly observe a func value itself, so the observation is of the
// pointed-to variable: keep *h reachable for as long as the registration
// should stay live.
//
// Example:
//
//	h := wirebus.Handler(func(ctx context.Context, args ...any) (any, error) {
//	    return "pong", nil
//	})
//	ref := wirebus.NewWeakRef(&h, nil)
func NewWeakRef(h *Handler, onExpire ExpireFunc) *WeakRef {
	wp := weak.Make(h)
	r := &WeakRef{
		hash:     uint64(reflect.ValueOf(h).Pointer()),
		onExpire: onExpire,
	}
	r.resolve = func() (Handler, bool) {
		p := wp.Value()
		if p == nil || *p == nil {
			return nil, false
		}
		return *p, true
	}
	runtime.AddCleanup(h, (*WeakRef).expire, r)
	return r
}

// NewBoundWeakRef builds a weak reference to a method bound to owner.
//
// The owner is observed weakly; the unbound method is held directly (a func
// cannot be collected independently of its code). Resolve applies the owner
// as the method's receiver argument, yielding a handler equivalent to a
// bound method. The identity hash combines the owner and method addresses at
// construction time, so two references to the same (owner, method) pair hash
// identically even after the owner dies.
//
// Example:
//
//	type Greeter struct{ name string }
//
//	func (g *Greeter) Greet(ctx context.Context, args ...any) (any, error) {
//	    return "hi from " + g.name, nil
//	}
//
//	g := &Greeter{name: "a"}
//	ref := wirebus.NewBoundWeakRef(g, (*Greeter).Greet, nil)
func NewBoundWeakRef[T any](owner *T, method func(*T, context.Context, ...any) (any, error), onExpire ExpireFunc) *WeakRef {
	wp := weak.Make(owner)
	r := &WeakRef{
		hash:     uint64(reflect.ValueOf(owner).Pointer()) ^ uint64(reflect.ValueOf(method).Pointer()),
		onExpire: onExpire,
	}
	r.resolve = func() (Handler, bool) {
		o := wp.Value()
		if o == nil {
			return nil, false
		}
		return func(ctx context.Context, args ...any) (any, error) {
			return method(o, ctx, args...)
		}, true
	}
	runtime.AddCleanup(owner, (*WeakRef).expire, r)
	return r
}

// Resolve returns the observed handler, or false once any observed target
// has been collected.
func (r *WeakRef) Resolve() (Handler, bool) {
	if r.expired.Load() {
		return nil, false
	}
	return r.resolve()
}

// Hash returns the reference's identity hash, fixed at construction.
func (r *WeakRef) Hash() uint64 {
	return r.hash
}

// Expired reports whether the reference has been notified of collection.
// Resolve may report false slightly earlier, as soon as a target is gone.
func (r *WeakRef) Expired() bool {
	return r.expired.Load()
}

func (r *WeakRef) expire() {
	if !r.expired.CompareAndSwap(false, true) {
		return
	}
	if r.onExpire == nil {
		return
	}
	// A panic on the cleanup goroutine is fatal to the process.
	defer func() { _ = recover() }()
	r.onExpire(r)
}
