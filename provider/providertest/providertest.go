// Package providertest is a behavioural suite every provider.Provider
// implementation must pass.
package providertest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pr "github.com/unkn0wn-root/tarotcache/provider"
)

// Harness builds a fresh, empty provider and a way to move its clock forward.
type Harness struct {
	New     func(t *testing.T) pr.Provider
	Advance func(d time.Duration)
}

func Run(t *testing.T, h Harness) {
	t.Run("GetSetDel", func(t *testing.T) { testGetSetDel(t, h) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, h) })
	t.Run("Expire", func(t *testing.T) { testExpire(t, h) })
	t.Run("SetNX", func(t *testing.T) { testSetNX(t, h) })
	t.Run("IncrBy", func(t *testing.T) { testIncrBy(t, h) })
	t.Run("MGetMSet", func(t *testing.T) { testMulti(t, h) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, h) })
}

func testGetSetDel(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, "k", []byte("v1"), 0))
	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), b)

	ex, err := p.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ex)

	n, err := p.Del(ctx, "k", "never")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ex, err = p.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ex)
}

func testTTL(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	ttl, err := p.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, pr.Missing, ttl)

	require.NoError(t, p.Set(ctx, "forever", []byte("x"), 0))
	ttl, err = p.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, pr.Persistent, ttl)

	require.NoError(t, p.Set(ctx, "short", []byte("x"), 5*time.Second))
	ttl, err = p.TTL(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ttl, "a fresh key reports its full lifetime")

	h.Advance(6 * time.Second)

	_, ok, err := p.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must read as absent")
	ttl, err = p.TTL(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, pr.Missing, ttl)

	_, ok, err = p.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testExpire(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	ok, err := p.Expire(ctx, "missing", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, "k", []byte("v"), 0))
	ok, err = p.Expire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := p.TTL(ctx, "k")
	require.NoError(t, err)
	assert.InDelta(t, 10, ttl, 1)

	b, found, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), b)
}

func testSetNX(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	ok, err := p.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	b, _, err := p.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), b)
}

func testIncrBy(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	n, err := p.IncrBy(ctx, "c", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = p.IncrBy(ctx, "c", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = p.IncrBy(ctx, "c", -7)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), n)

	require.NoError(t, p.Set(ctx, "s", []byte("not a number"), 0))
	_, err = p.IncrBy(ctx, "s", 1)
	assert.Error(t, err)
}

func testMulti(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	require.NoError(t, p.MSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, 30*time.Second))

	vals, err := p.MGet(ctx, "a", "nope", "b")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, []byte("1"), vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("2"), vals[2])

	for _, k := range []string{"a", "b"} {
		ttl, err := p.TTL(ctx, k)
		require.NoError(t, err)
		assert.InDelta(t, 30, ttl, 1, k)
	}

	vals, err = p.MGet(ctx)
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func testKeys(t *testing.T, h Harness) {
	ctx := context.Background()
	p := h.New(t)

	for _, k := range []string{"tarot:card:1", "tarot:card:2", "tarot:daily", "other:card:1"} {
		require.NoError(t, p.Set(ctx, k, []byte("x"), 0))
	}
	require.NoError(t, p.Set(ctx, "tarot:card:gone", []byte("x"), time.Second))
	h.Advance(2 * time.Second)

	keys, err := p.Keys(ctx, "tarot:card:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"tarot:card:1", "tarot:card:2"}, keys)

	keys, err = p.Keys(ctx, "tarot:*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}
