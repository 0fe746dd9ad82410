package tarotcache

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "github.com/unkn0wn-root/tarotcache/codec"
	pr "github.com/unkn0wn-root/tarotcache/provider"
	"github.com/unkn0wn-root/tarotcache/provider/redis"
)

type card struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// recHooks records every event for assertions.
type recHooks struct {
	mu        sync.Mutex
	hits      []string
	misses    []string
	backend   []string
	encFall   int
	decFall   int
	fetchKeys []string
}

func (h *recHooks) record(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *recHooks) Hit(op, k string) { h.record(func() { h.hits = append(h.hits, op+" "+k) }) }
func (h *recHooks) Miss(op, k string) {
	h.record(func() { h.misses = append(h.misses, op+" "+k) })
}
func (h *recHooks) BackendError(op, _ string, _ error) {
	h.record(func() { h.backend = append(h.backend, op) })
}
func (h *recHooks) EncodeFallback(string, error) { h.record(func() { h.encFall++ }) }
func (h *recHooks) DecodeFallback(string, error) { h.record(func() { h.decFall++ }) }
func (h *recHooks) Fetched(k string, _ time.Duration) {
	h.record(func() { h.fetchKeys = append(h.fetchKeys, k) })
}

func newRedisStore(t *testing.T, mutate func(*Options)) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := redis.Dial("", mr.Addr(), "", 0)
	require.NoError(t, err)
	opts := Options{Provider: p}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

var errDown = errors.New("connection refused")

// downProvider fails every call, like an unreachable Redis.
type downProvider struct{}

var _ pr.Provider = downProvider{}

func (downProvider) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errDown }
func (downProvider) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (downProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (downProvider) Del(context.Context, ...string) (int64, error)       { return 0, errDown }
func (downProvider) Exists(context.Context, string) (bool, error)        { return false, errDown }
func (downProvider) TTL(context.Context, string) (int64, error)          { return 0, errDown }
func (downProvider) IncrBy(context.Context, string, int64) (int64, error) { return 0, errDown }
func (downProvider) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}
func (downProvider) MGet(context.Context, ...string) ([][]byte, error) { return nil, errDown }
func (downProvider) MSet(context.Context, map[string][]byte, time.Duration) error {
	return errDown
}
func (downProvider) Keys(context.Context, string) ([]string, error) { return nil, errDown }
func (downProvider) Info(context.Context) (pr.Info, error)          { return pr.Info{}, errDown }
func (downProvider) Ping(context.Context) error                     { return errDown }
func (downProvider) Close(context.Context) error                    { return nil }

// hangProvider blocks until the call's context is done.
type hangProvider struct{ downProvider }

func (hangProvider) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	in := card{ID: 7, Name: "The Chariot"}
	s.Set(ctx, "card:7", in)

	got, ok := Get[card](ctx, s, "card:7")
	require.True(t, ok)
	assert.Equal(t, in, got)

	raw, ok := s.Get(ctx, "card:7")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "The Chariot"}, raw)

	_, ok = s.Get(ctx, "card:8")
	assert.False(t, ok)
}

func TestRoundTripEveryCodec(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "msgpack", "cbor", "proto"} {
		t.Run(name, func(t *testing.T) {
			cd, err := c.ByName(name)
			require.NoError(t, err)
			s, _ := newRedisStore(t, func(o *Options) { o.Codec = cd })

			s.Set(ctx, "card:0", card{ID: 0, Name: "The Fool"})
			got, ok := Get[card](ctx, s, "card:0")
			require.True(t, ok)
			assert.Equal(t, "The Fool", got.Name)
		})
	}
}

func TestCachedNullReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)
	s.Set(ctx, "nothing", nil)
	_, ok := s.Get(ctx, "nothing")
	assert.False(t, ok)
}

func TestTypedReadsTreatCachedNullAsMiss(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "msgpack", "cbor", "proto"} {
		t.Run(name, func(t *testing.T) {
			cd, err := c.ByName(name)
			require.NoError(t, err)
			s, _ := newRedisStore(t, func(o *Options) { o.Codec = cd })

			s.Set(ctx, "nothing", nil)
			require.True(t, s.Exists(ctx, "nothing"))

			_, ok := Get[card](ctx, s, "nothing")
			assert.False(t, ok)
			_, ok = Get[*card](ctx, s, "nothing")
			assert.False(t, ok)

			got := MGet[card](ctx, s, []string{"nothing"})
			assert.Nil(t, got[0])
		})
	}
}

func TestGetOrFetchNullIsNotCached(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	calls := 0
	fetch := func(context.Context) (*card, error) {
		calls++
		return nil, nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetOrFetch(ctx, s, "card:404", fetch, WithTTL(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, v)
	}
	assert.Equal(t, 3, calls)

	// a real value written later is served from the cache
	s.Set(ctx, "card:404", card{ID: 4, Name: "The Emperor"})
	v, err := GetOrFetch(ctx, s, "card:404", fetch)
	require.NoError(t, err)
	assert.Equal(t, "The Emperor", v.Name)
	assert.Equal(t, 3, calls)
}

func TestCounterBypassesCodec(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "msgpack", "cbor", "proto", "raw"} {
		t.Run(name, func(t *testing.T) {
			cd, err := c.ByName(name)
			require.NoError(t, err)
			s, _ := newRedisStore(t, func(o *Options) { o.Codec = cd })

			assert.Equal(t, int64(0), s.Counter(ctx, "ctr"))
			for i := 0; i < 3; i++ {
				s.Incr(ctx, "ctr")
			}
			assert.Equal(t, int64(3), s.Counter(ctx, "ctr"))
			s.Decr(ctx, "ctr")
			assert.Equal(t, int64(2), s.Counter(ctx, "ctr"))
		})
	}
}

func TestCounterNonIntegerAndDown(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)
	require.NoError(t, mr.Set("tarot:ctr", "twelve"))
	assert.Equal(t, int64(0), s.Counter(ctx, "ctr"))
	assert.True(t, s.Healthy())

	mr.Close()
	assert.Equal(t, int64(0), s.Counter(ctx, "ctr"))
	assert.False(t, s.Healthy())
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)

	s.Set(ctx, "short", "v", WithTTL(10*time.Second))
	s.Set(ctx, "forever", "v")

	assert.InDelta(t, 10, s.TTL(ctx, "short"), 1)
	assert.Equal(t, int64(-1), s.TTL(ctx, "forever"))
	assert.Equal(t, int64(-2), s.TTL(ctx, "missing"))

	mr.FastForward(11 * time.Second)

	_, ok := Get[string](ctx, s, "short")
	assert.False(t, ok)
	assert.False(t, s.Exists(ctx, "short"))
	assert.Equal(t, int64(-2), s.TTL(ctx, "short"))

	v, ok := Get[string](ctx, s, "forever")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestExpireRefreshesLifetime(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)

	s.Set(ctx, "session", "u1", WithTTL(10*time.Second))
	mr.FastForward(8 * time.Second)
	require.True(t, s.Expire(ctx, "session", 10*time.Second))
	mr.FastForward(8 * time.Second)
	assert.True(t, s.Exists(ctx, "session"))
	assert.False(t, s.Expire(ctx, "missing", time.Second))
}

func TestDelExists(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	s.Set(ctx, "k", 1)
	assert.True(t, s.Exists(ctx, "k"))
	assert.True(t, s.Del(ctx, "k"))
	assert.False(t, s.Del(ctx, "k"))
	assert.False(t, s.Exists(ctx, "k"))
}

func TestIncrDecr(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	assert.Equal(t, int64(1), s.Incr(ctx, "relationship:completed"))
	assert.Equal(t, int64(2), s.Incr(ctx, "relationship:completed"))
	assert.Equal(t, int64(1), s.Decr(ctx, "relationship:completed"))

	n, ok := Get[int64](ctx, s, "relationship:completed")
	require.True(t, ok)
	assert.Equal(t, int64(1), n)
}

func TestMSetMGet(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)

	s.MSet(ctx, map[string]any{
		"card:1": card{ID: 1, Name: "The Magician"},
		"card:2": card{ID: 2, Name: "The High Priestess"},
	}, WithTTL(time.Hour))

	got := MGet[card](ctx, s, []string{"card:1", "card:9", "card:2"})
	require.Len(t, got, 3)
	require.NotNil(t, got[0])
	assert.Equal(t, "The Magician", got[0].Name)
	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
	assert.Equal(t, 2, got[2].ID)

	// Same TTL on every key.
	assert.InDelta(t, 3600, mr.TTL("tarot:card:1").Seconds(), 1)
	assert.InDelta(t, 3600, mr.TTL("tarot:card:2").Seconds(), 1)

	assert.Empty(t, MGet[card](ctx, s, nil))
}

func TestSetNX(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	assert.True(t, s.SetNX(ctx, "lock", "a", WithTTL(time.Minute)))
	assert.False(t, s.SetNX(ctx, "lock", "b", WithTTL(time.Minute)))
	v, _ := Get[string](ctx, s, "lock")
	assert.Equal(t, "a", v)
}

func TestWithPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)

	s.Set(ctx, "k", "default")
	s.Set(ctx, "k", "api", WithPrefix("api:"))
	s.Set(ctx, "raw", "bare", WithPrefix(""))

	assert.True(t, mr.Exists("tarot:k"))
	assert.True(t, mr.Exists("api:k"))
	assert.True(t, mr.Exists("raw"))
	assert.Equal(t, "api:k", s.Key("k", WithPrefix("api:")))
	assert.Equal(t, "tarot:k", s.Key("k"))

	v, _ := Get[string](ctx, s, "k", WithPrefix("api:"))
	assert.Equal(t, "api", v)
}

func TestFlushScopesToNamespaceAndPattern(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, nil)

	s.Set(ctx, "card:1", 1)
	s.Set(ctx, "card:2", 2)
	s.Set(ctx, "daily_card_user_u1_2026-10-16", 3)
	require.NoError(t, mr.Set("other:card:1", "x"))

	assert.Equal(t, 2, s.Flush(ctx, "card:*"))
	assert.False(t, s.Exists(ctx, "card:1"))
	assert.True(t, s.Exists(ctx, "daily_card_user_u1_2026-10-16"))

	assert.Equal(t, 1, s.Flush(ctx, ""))
	assert.True(t, mr.Exists("other:card:1"))
	assert.Equal(t, 0, s.Flush(ctx, ""))
}

func TestGetOrFetch(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	s, _ := newRedisStore(t, func(o *Options) { o.Hooks = h })

	calls := 0
	fetch := func(context.Context) (card, error) {
		calls++
		return card{ID: 19, Name: "The Sun"}, nil
	}

	v, err := GetOrFetch(ctx, s, "daily", fetch, WithTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "The Sun", v.Name)

	v, err = GetOrFetch(ctx, s, "daily", fetch, WithTTL(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 19, v.ID)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"tarot:daily"}, h.fetchKeys)
	assert.InDelta(t, 3600, s.TTL(ctx, "daily"), 1)
}

func TestGetOrFetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, nil)

	boom := errors.New("db down")
	_, err := GetOrFetch(ctx, s, "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Exists(ctx, "k"))
}

func TestEncodeFallbackStoresStringForm(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	s, _ := newRedisStore(t, func(o *Options) { o.Hooks = h })

	s.Set(ctx, "inf", math.Inf(1))
	assert.Equal(t, 1, h.encFall)

	v, ok := Get[string](ctx, s, "inf")
	require.True(t, ok)
	assert.Equal(t, "+Inf", v)
}

func TestDecodeFallback(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	s, mr := newRedisStore(t, func(o *Options) { o.Hooks = h })
	require.NoError(t, mr.Set("tarot:legacy", "plain text, not json"))

	v, ok := s.Get(ctx, "legacy")
	require.True(t, ok)
	assert.Equal(t, "plain text, not json", v)

	str, ok := Get[string](ctx, s, "legacy")
	require.True(t, ok)
	assert.Equal(t, "plain text, not json", str)

	_, ok = Get[card](ctx, s, "legacy")
	assert.False(t, ok)
	assert.Equal(t, 3, h.decFall)
}

func TestBackendDownSafeDefaults(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	s, err := New(Options{Provider: downProvider{}, Hooks: h})
	require.NoError(t, err)

	s.Set(ctx, "k", "v")
	s.MSet(ctx, map[string]any{"a": 1})
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, s.Del(ctx, "k"))
	assert.False(t, s.Exists(ctx, "k"))
	assert.Equal(t, int64(-2), s.TTL(ctx, "k"))
	assert.False(t, s.Expire(ctx, "k", time.Minute))
	assert.Equal(t, int64(0), s.Incr(ctx, "k"))
	assert.Equal(t, int64(0), s.Decr(ctx, "k"))
	assert.Equal(t, []*int{nil, nil}, MGet[int](ctx, s, []string{"a", "b"}))
	assert.Equal(t, 0, s.Flush(ctx, ""))
	assert.False(t, s.SetNX(ctx, "k", 1))

	v, err := GetOrFetch(ctx, s, "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	assert.False(t, s.Healthy())
	var oe *OpError
	require.ErrorAs(t, s.LastError(), &oe)
	assert.ErrorIs(t, oe, errDown)
	assert.Error(t, s.Connect(ctx))

	st := s.Stats(ctx)
	assert.False(t, st.Connected)
	assert.NotEmpty(t, st.LastError)
	assert.GreaterOrEqual(t, st.Errors, int64(14))
	assert.Len(t, h.backend, int(st.Errors))
}

func TestBackendTimeoutTakesSafeDefault(t *testing.T) {
	s, err := New(Options{Provider: hangProvider{}, OpTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	_, ok := s.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.Healthy())
}

func TestRecoversAfterOutage(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, func(o *Options) { o.OpTimeout = 200 * time.Millisecond })

	require.NoError(t, s.Connect(ctx))
	mr.SetError("LOADING")
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, s.Healthy())

	mr.SetError("")
	s.Set(ctx, "k", "v")
	assert.True(t, s.Healthy())
	assert.NoError(t, s.LastError())
}

func TestDisabledStoreIsNop(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, func(o *Options) { o.Disabled = true })

	s.Set(ctx, "k", "v")
	assert.False(t, mr.Exists("tarot:k"))
	_, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, s.Enabled())
	assert.Equal(t, int64(-2), s.TTL(ctx, "k"))
	assert.False(t, s.Stats(ctx).Connected)
}

func TestStatsCountsHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	s, _ := newRedisStore(t, func(o *Options) { o.Hooks = h })

	s.Set(ctx, "a", 1)
	s.Get(ctx, "a")
	s.Get(ctx, "a")
	s.Get(ctx, "b")

	st := s.Stats(ctx)
	assert.True(t, st.Connected)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 0.001)
	assert.Equal(t, "tarot:", st.Prefix)
	assert.Equal(t, "json", st.Codec)
	assert.Equal(t, []string{"get tarot:a", "get tarot:a"}, h.hits)
	assert.Equal(t, []string{"get tarot:b"}, h.misses)
}

func TestMultiHooksFanOut(t *testing.T) {
	a, b := &recHooks{}, &recHooks{}
	m := MultiHooks{a, b}
	m.Hit("get", "k")
	m.Miss("get", "k")
	m.BackendError("get", "k", errDown)
	m.EncodeFallback("k", errDown)
	m.DecodeFallback("k", errDown)
	m.Fetched("k", time.Millisecond)
	for _, h := range []*recHooks{a, b} {
		assert.Len(t, h.hits, 1)
		assert.Len(t, h.misses, 1)
		assert.Len(t, h.backend, 1)
		assert.Equal(t, 1, h.encFall)
		assert.Equal(t, 1, h.decFall)
		assert.Len(t, h.fetchKeys, 1)
	}
}
