package wirebus

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	name   string
	called bool
}

func (g *greeter) greet(ctx context.Context, args ...any) (any, error) {
	g.called = true
	return "hi from " + g.name, nil
}

func TestStrongRef_ResolvesOriginalHandler(t *testing.T) {
	called := false
	ref := NewStrongRef(func(ctx context.Context, args ...any) (any, error) {
		called = true
		return "ok", nil
	})

	h, ok := ref.Resolve()
	require.True(t, ok)

	v, err := h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.True(t, called)
}

func TestStrongRef_SurvivesCollection(t *testing.T) {
	ref := func() *StrongRef {
		h := Handler(func(ctx context.Context, args ...any) (any, error) {
			return 42, nil
		})
		return NewStrongRef(h)
	}()

	runtime.GC()
	runtime.GC()

	h, ok := ref.Resolve()
	require.True(t, ok)
	v, err := h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestWeakRef_ResolvesWhileAlive(t *testing.T) {
	called := false
	h := Handler(func(ctx context.Context, args ...any) (any, error) {
		called = true
		return nil, nil
	})
	ref := NewWeakRef(&h, nil)

	fn, ok := ref.Resolve()
	require.True(t, ok)
	_, err := fn(context.Background())
	require.NoError(t, err)
	assert.True(t, called)

	runtime.KeepAlive(&h)
}

func TestWeakRef_ExpiresAfterCollection(t *testing.T) {
	notified := make(chan *WeakRef, 1)

	ref := func() *WeakRef {
		h := Handler(func(ctx context.Context, args ...any) (any, error) {
			return nil, nil
		})
		r := NewWeakRef(&h, func(r *WeakRef) {
			notified <- r
		})

		_, ok := r.Resolve()
		require.True(t, ok, "reference should resolve while the handler is alive")
		require.False(t, r.Expired())
		return r
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := ref.Resolve()
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "reference should expire once the handler is unreachable")

	select {
	case got := <-notified:
		assert.Same(t, ref, got)
	case <-time.After(5 * time.Second):
		t.Fatal("expiry callback never fired")
	}
	assert.True(t, ref.Expired())
}

func TestBoundWeakRef_AppliesOwner(t *testing.T) {
	g := &greeter{name: "a"}
	ref := NewBoundWeakRef(g, (*greeter).greet, nil)

	h, ok := ref.Resolve()
	require.True(t, ok)

	v, err := h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi from a", v)
	assert.True(t, g.called)

	runtime.KeepAlive(g)
}

func TestBoundWeakRef_ExpiresWithOwner(t *testing.T) {
	notified := make(chan *WeakRef, 1)

	ref := func() *WeakRef {
		g := &greeter{name: "b"}
		r := NewBoundWeakRef(g, (*greeter).greet, func(r *WeakRef) {
			notified <- r
		})

		h, ok := r.Resolve()
		require.True(t, ok)
		v, err := h(context.Background())
		require.NoError(t, err)
		require.Equal(t, "hi from b", v)
		return r
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := ref.Resolve()
		return !ok
	}, 5*time.Second, 10*time.Millisecond, "reference should expire once the owner is unreachable")

	select {
	case got := <-notified:
		assert.Same(t, ref, got)
	case <-time.After(5 * time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestBoundWeakRef_HashStableAcrossOwnerDeath(t *testing.T) {
	g := &greeter{name: "c"}
	ref1 := NewBoundWeakRef(g, (*greeter).greet, nil)
	ref2 := NewBoundWeakRef(g, (*greeter).greet, nil)

	assert.Equal(t, ref1.Hash(), ref2.Hash(), "same (owner, method) pair should hash identically")

	before := ref1.Hash()
	runtime.KeepAlive(g)
	g = nil

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := ref1.Resolve()
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, before, ref1.Hash(), "hash must not change after the owner dies")
}

func TestWeakRef_ExpiryCallbackPanicIsSwallowed(t *testing.T) {
	ref := func() *WeakRef {
		h := Handler(func(ctx context.Context, args ...any) (any, error) {
			return nil, nil
		})
		return NewWeakRef(&h, func(*WeakRef) {
			panic("boom")
		})
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return ref.Expired()
	}, 5*time.Second, 10*time.Millisecond, "a panicking callback must still mark the reference expired")
}
