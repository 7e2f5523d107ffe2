package wirebus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Bus is the registration surface over the pattern registry and, via its
// embedded Dispatcher, the default calling surface (filter "*", synchronous
// executor).
//
// Usage:
//
//	bus, _ := wirebus.New()
//
//	bus.Register("foo.bar", func(ctx context.Context, args ...any) (any, error) {
//	    fmt.Println("bar:", args)
//	    return nil, nil
//	})
//
//	evt := bus.WithFilter("foo.*").Call(context.Background(), "hello")
//	evt.AwaitAll(wirebus.Forever)
//
// A Bus is safe for concurrent use.
type Bus struct {
	Dispatcher

	refs      *GlobMap[*refSet]
	allowWild bool
	log       zerolog.Logger
}

// Option configures a Bus.
type Option func(*busConfig)

type busConfig struct {
	sep       string
	allowWild bool
	exec      Executor
	log       zerolog.Logger
}

// WithSeparator sets the pattern component separator. It must be exactly one
// rune; anything else fails New with ErrInvalidPattern.
func WithSeparator(sep string) Option {
	return func(c *busConfig) {
		c.sep = sep
	}
}

// WithWildcardKeys permits registration patterns to carry wildcards, making
// a registration like "orders.*" match concrete calls like "orders.created".
func WithWildcardKeys() Option {
	return func(c *busConfig) {
		c.allowWild = true
	}
}

// WithExecutor sets the default executor used by Call. Individual callers
// can still derive dispatchers with a different one via WithExecutor on the
// Dispatcher.
func WithExecutor(exec Executor) Option {
	return func(c *busConfig) {
		c.exec = exec
	}
}

// WithLogger sets the logger used for registration and eviction events.
// The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *busConfig) {
		c.log = log
	}
}

// New creates a Bus.
func New(opts ...Option) (*Bus, error) {
	cfg := busConfig{
		sep:  ".",
		exec: SyncExecutor{},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mapOpts := []MapOption[*refSet]{
		MapSeparator[*refSet](cfg.sep),
		WithDefault[*refSet](newRefSet),
	}
	if cfg.allowWild {
		mapOpts = append(mapOpts, AllowWildcardKeys[*refSet]())
	}
	refs, err := NewGlobMap(mapOpts...)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		refs:      refs,
		allowWild: cfg.allowWild,
		log:       cfg.log.With().Str("component", "wirebus").Logger(),
	}
	b.Dispatcher = Dispatcher{refs: refs, pattern: "*", exec: cfg.exec}
	return b, nil
}

// Register adds a strong registration of h under pattern. The handler stays
// reachable for as long as the registration does. The returned reference
// identifies the registration for Unregister.
func (b *Bus) Register(pattern string, h Handler) (*StrongRef, error) {
	set, err := b.refSetFor(pattern)
	if err != nil {
		return nil, err
	}
	ref := NewStrongRef(h)
	set.add(ref)
	b.log.Debug().Str("pattern", pattern).Uint64("ref", ref.Hash()).Msg("registered handler")
	return ref, nil
}

// RegisterWeak adds a weak registration observing the handler stored at h.
// Once nothing else keeps *h reachable the registration expires and is
// evicted from the bus.
func (b *Bus) RegisterWeak(pattern string, h *Handler) (*WeakRef, error) {
	set, err := b.refSetFor(pattern)
	if err != nil {
		return nil, err
	}
	ref := NewWeakRef(h, b.evictFrom(pattern))
	set.add(ref)
	b.log.Debug().Str("pattern", pattern).Uint64("ref", ref.Hash()).Msg("registered weak handler")
	return ref, nil
}

// RegisterBound adds a weak registration of a method bound to owner. The
// owner is observed weakly; when it is collected the registration expires
// and is evicted. This is a package-level function because methods cannot
// carry independent type parameters.
//
// Example:
//
//	type Mailer struct{ addr string }
//
//	func (m *Mailer) OnSignup(ctx context.Context, args ...any) (any, error) {
//	    return nil, m.send(args)
//	}
//
//	ref, err := wirebus.RegisterBound(bus, "user.signup", mailer, (*Mailer).OnSignup)
func RegisterBound[T any](b *Bus, pattern string, owner *T, method func(*T, context.Context, ...any) (any, error)) (*WeakRef, error) {
	set, err := b.refSetFor(pattern)
	if err != nil {
		return nil, err
	}
	ref := NewBoundWeakRef(owner, method, b.evictFrom(pattern))
	set.add(ref)
	b.log.Debug().Str("pattern", pattern).Uint64("ref", ref.Hash()).Msg("registered bound handler")
	return ref, nil
}

// Unregister removes a registration. It is idempotent: removing a reference
// that is already gone, or from a pattern that was never registered, is a
// logged no-op.
func (b *Bus) Unregister(pattern string, ref Ref) error {
	set, ok := b.refs.Get(pattern)
	if !ok {
		b.log.Debug().Str("pattern", pattern).Msg("unregister: no such pattern")
		return nil
	}
	set.remove(ref)
	b.log.Debug().Str("pattern", pattern).Uint64("ref", ref.Hash()).Msg("unregistered handler")
	return nil
}

// refSetFor returns the mutable reference set stored under pattern,
// creating it on first registration.
func (b *Bus) refSetFor(pattern string) (*refSet, error) {
	if !b.allowWild && containsWildcard(pattern) {
		return nil, fmt.Errorf("%w: pattern %q contains wildcard characters", ErrInvalidPattern, pattern)
	}
	set, ok := b.refs.Fetch(pattern)
	if !ok {
		return nil, fmt.Errorf("%w: pattern %q", ErrInvalidPattern, pattern)
	}
	return set, nil
}

// evictFrom builds the expiry callback that removes a dead weak reference
// from its pattern's set. Expiry can race process teardown, so failures here
// are logged and swallowed rather than surfaced to the collector.
func (b *Bus) evictFrom(pattern string) ExpireFunc {
	return func(ref *WeakRef) {
		defer func() {
			if r := recover(); r != nil {
				b.log.Warn().Str("pattern", pattern).Interface("panic", r).Msg("eviction callback panicked")
			}
		}()
		b.log.Debug().Str("pattern", pattern).Uint64("ref", ref.Hash()).Msg("evicting expired handler")
		_ = b.Unregister(pattern, ref)
	}
}

// refSet is an insertion-ordered set of references, deduplicated by
// reference identity. Sets stay mutable in place so that cached glob results
// holding them always observe current membership.
type refSet struct {
	mu    sync.Mutex
	index map[Ref]int
	order []Ref
}

func newRefSet() *refSet {
	return &refSet{index: make(map[Ref]int)}
}

func (s *refSet) add(r Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[r]; ok {
		return
	}
	s.index[r] = len(s.order)
	s.order = append(s.order, r)
}

func (s *refSet) remove(r Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[r]
	if !ok {
		return
	}
	delete(s.index, r)
	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[s.order[j]] = j
	}
}

func (s *refSet) snapshot() []Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ref, len(s.order))
	copy(out, s.order)
	return out
}

func (s *refSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
