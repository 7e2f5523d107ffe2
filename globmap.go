package wirebus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// ErrInvalidPattern is returned when a stored key contains wildcard
// characters while wildcard keys are disabled, or when a GlobMap is
// configured with a separator that is not exactly one rune.
var ErrInvalidPattern = errors.New("invalid pattern")

// GlobMap is a map keyed by pattern strings with glob lookup superpowers.
//
// Beyond plain Put/Get/Delete, Glob returns the values of every stored key
// matching a wildcard query (see Matcher for the wildcard grammar). Lookups
// are cached per query string; any mutation invalidates the whole cache
// before it completes, so a lookup started after a mutation finishes always
// observes that mutation. Cache hits are served from an atomically swapped
// snapshot and take no lock.
//
// By default stored keys must be literal. With AllowWildcardKeys, a stored
// wildcard key participates in matching symmetrically: "a.*" is found by the
// literal query "a.b", and a literal-looking key is found by a wildcard
// query. Matching a wildcard query against a wildcard key (both sides
// wildcarded) is unsupported; no result is defined for that case.
//
// A GlobMap is safe for concurrent use.
type GlobMap[V comparable] struct {
	mu        sync.Mutex
	sep       rune
	allowWild bool
	transform func([]V) []V
	missing   func() V

	items map[string]V
	cache atomic.Pointer[map[string][]V]
}

// MapOption configures a GlobMap.
type MapOption[V comparable] func(*GlobMap[V])

// MapSeparator sets the component separator. It must be exactly one rune;
// anything else fails NewGlobMap with ErrInvalidPattern.
func MapSeparator[V comparable](sep string) MapOption[V] {
	return func(m *GlobMap[V]) {
		if utf8.RuneCountInString(sep) != 1 {
			m.sep = 0
			return
		}
		m.sep, _ = utf8.DecodeRuneInString(sep)
	}
}

// AllowWildcardKeys permits stored keys to carry wildcard characters and
// enables reverse matching of those keys against literal queries.
func AllowWildcardKeys[V comparable]() MapOption[V] {
	return func(m *GlobMap[V]) {
		m.allowWild = true
	}
}

// WithTransform applies fn to every freshly computed match list before it is
// cached and returned. The same transformed slice is served on cache hits.
func WithTransform[V comparable](fn func([]V) []V) MapOption[V] {
	return func(m *GlobMap[V]) {
		m.transform = fn
	}
}

// WithDefault installs a factory producing a value for a missing key.
// With a factory set, Fetch materializes and stores the value instead of
// reporting a miss.
func WithDefault[V comparable](factory func() V) MapOption[V] {
	return func(m *GlobMap[V]) {
		m.missing = factory
	}
}

// NewGlobMap creates a GlobMap. The default separator is '.'.
func NewGlobMap[V comparable](opts ...MapOption[V]) (*GlobMap[V], error) {
	m := &GlobMap[V]{
		sep:   '.',
		items: make(map[string]V),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sep == 0 {
		return nil, fmt.Errorf("%w: separator must be a single character", ErrInvalidPattern)
	}
	m.cache.Store(&map[string][]V{})
	return m, nil
}

// Put stores v under key. Keys containing wildcard characters are rejected
// with ErrInvalidPattern unless AllowWildcardKeys was set.
func (m *GlobMap[V]) Put(key string, v V) error {
	if !m.allowWild && containsWildcard(key) {
		return fmt.Errorf("%w: key %q contains wildcard characters", ErrInvalidPattern, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = v
	m.invalidate()
	return nil
}

// Get returns the value stored under key, or the zero value and false when
// the key is absent.
func (m *GlobMap[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.items[key]
	return v, ok
}

// Fetch returns the value stored under key, materializing a missing key with
// the configured default factory. It reports false when the key is absent
// and no factory is set, or when the key could not be stored because it
// carries wildcard characters while wildcard keys are disabled.
func (m *GlobMap[V]) Fetch(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.items[key]; ok {
		return v, true
	}
	var zero V
	if m.missing == nil {
		return zero, false
	}
	if !m.allowWild && containsWildcard(key) {
		return zero, false
	}
	v := m.missing()
	m.items[key] = v
	m.invalidate()
	return v, true
}

// Delete removes the value stored under key, if any.
func (m *GlobMap[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	m.invalidate()
}

// Len returns the number of stored keys.
func (m *GlobMap[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Glob returns the values of every stored key matching the query pattern.
// Ordering of the result is undefined. An empty slice means nothing matched.
func (m *GlobMap[V]) Glob(query string) []V {
	if vals, ok := (*m.cache.Load())[query]; ok {
		return vals
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globLocked(query)
}

// GlobIntersection returns the values whose keys match every one of the
// given patterns. Wildcard behavior is as for Glob.
func (m *GlobMap[V]) GlobIntersection(queries ...string) []V {
	matched := make(map[V]struct{})
	for _, v := range m.Glob("**") {
		matched[v] = struct{}{}
	}

	for _, q := range queries {
		keep := make(map[V]struct{}, len(matched))
		for _, v := range m.Glob(q) {
			if _, ok := matched[v]; ok {
				keep[v] = struct{}{}
			}
		}
		matched = keep
	}

	out := make([]V, 0, len(matched))
	for v := range matched {
		out = append(out, v)
	}
	return out
}

// globLocked recomputes the match list for query, caches it, and returns it.
// Callers hold m.mu.
func (m *GlobMap[V]) globLocked(query string) []V {
	if vals, ok := (*m.cache.Load())[query]; ok {
		return vals
	}

	compiled := CompilePattern(query, m.sep)

	vals := []V{}
	for key, v := range m.items {
		switch {
		case compiled.Match(key):
			vals = append(vals, v)
		case containsWildcard(key):
			// The key is itself a glob; try the match in reverse with the
			// query as the literal side.
			if CompilePattern(key, m.sep).Match(query) {
				vals = append(vals, v)
			}
		}
	}

	if m.transform != nil {
		vals = m.transform(vals)
	}

	next := make(map[string][]V, len(*m.cache.Load())+1)
	for k, v := range *m.cache.Load() {
		next[k] = v
	}
	next[query] = vals
	m.cache.Store(&next)

	return vals
}

// invalidate truncates the cache. Callers hold m.mu.
func (m *GlobMap[V]) invalidate() {
	m.cache.Store(&map[string][]V{})
}
