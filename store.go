package tarotcache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	c "github.com/unkn0wn-root/tarotcache/codec"
	pr "github.com/unkn0wn-root/tarotcache/provider"
)

// Store is the cache facade handed to every component. It is safe for
// concurrent use and never surfaces backend errors to callers.
type Store struct {
	provider pr.Provider
	codec    c.Codec
	prefix   string
	log      Logger
	hooks    Hooks
	timeout  time.Duration
	enabled  bool
	null     []byte // the codec's encoding of nil; nil when it has none

	lastErr atomic.Pointer[OpError]
	hits    atomic.Int64
	misses  atomic.Int64
	errs    atomic.Int64
	fetches atomic.Int64
}

func New(opts Options) (*Store, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	s := &Store{
		provider: opts.Provider,
		enabled:  !opts.Disabled,
	}
	s.codec = coalesce[c.Codec](opts.Codec, c.JSON{})
	s.prefix = coalesce(opts.Prefix, DefaultPrefix)
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.timeout = coalesce(opts.OpTimeout, DefaultOpTimeout)
	if b, err := s.codec.Marshal(nil); err == nil && len(b) > 0 {
		s.null = b
	}
	return s, nil
}

func (s *Store) Enabled() bool { return s.enabled }

// Prefix is the default key prefix.
func (s *Store) Prefix() string { return s.prefix }

// Connect pings the backend. A failure leaves the store usable in degraded
// mode: operations return their safe defaults until the backend recovers.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	s.log.Info("cache backend connected", Fields{"prefix": s.prefix, "codec": s.codec.Name()})
	return nil
}

// Ping checks the backend and updates Healthy accordingly.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.provider.Ping(ctx); err != nil {
		s.fail("ping", "", err)
		return s.LastError()
	}
	s.lastErr.Store(nil)
	return nil
}

// Healthy reports whether the most recent backend call succeeded.
func (s *Store) Healthy() bool { return s.lastErr.Load() == nil }

// LastError returns the most recent absorbed backend failure, nil once a later
// call succeeds.
func (s *Store) LastError() error {
	if e := s.lastErr.Load(); e != nil {
		return e
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) fail(op, key string, err error) {
	s.errs.Add(1)
	oe := &OpError{Op: op, Key: key, Err: err}
	s.lastErr.Store(oe)
	s.log.Warn("cache backend unavailable", Fields{"op": op, "key": key, "err": err.Error()})
	s.hooks.BackendError(op, key, err)
}

func (s *Store) ok() {
	if s.lastErr.Load() != nil {
		s.lastErr.Store(nil)
	}
}

func (s *Store) hit(op, key string) {
	s.hits.Add(1)
	s.hooks.Hit(op, key)
}

func (s *Store) miss(op, key string) {
	s.misses.Add(1)
	s.hooks.Miss(op, key)
}

// Set stores v. Failures are logged and otherwise ignored.
func (s *Store) Set(ctx context.Context, key string, v any, opts ...Option) {
	if !s.enabled {
		return
	}
	o := collect(opts)
	k := s.storageKey(key, o)
	b := s.encode(k, v)

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.provider.Set(ctx, k, b, o.ttl); err != nil {
		s.fail("set", k, err)
		return
	}
	s.ok()
}

// SetNX stores v only if key is absent and reports whether it did.
func (s *Store) SetNX(ctx context.Context, key string, v any, opts ...Option) bool {
	if !s.enabled {
		return false
	}
	o := collect(opts)
	k := s.storageKey(key, o)
	b := s.encode(k, v)

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	set, err := s.provider.SetNX(ctx, k, b, o.ttl)
	if err != nil {
		s.fail("setnx", k, err)
		return false
	}
	s.ok()
	return set
}

// Get returns the decoded value. A cached null reads the same as a miss, here
// and in every typed read.
func (s *Store) Get(ctx context.Context, key string, opts ...Option) (any, bool) {
	var v any
	if !s.getInto(ctx, "get", key, &v, collect(opts)) || v == nil {
		return nil, false
	}
	return v, true
}

// Get is the typed form of Store.Get.
func Get[T any](ctx context.Context, s *Store, key string, opts ...Option) (T, bool) {
	return getAs[T](ctx, s, "get", key, collect(opts))
}

func getAs[T any](ctx context.Context, s *Store, op, key string, o callOpts) (T, bool) {
	var v T
	if !s.getInto(ctx, op, key, &v, o) {
		var zero T
		return zero, false
	}
	return v, true
}

func (s *Store) getInto(ctx context.Context, op, key string, dst any, o callOpts) bool {
	if !s.enabled {
		return false
	}
	k := s.storageKey(key, o)

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	raw, found, err := s.provider.Get(ctx, k)
	if err != nil {
		s.fail(op, k, err)
		return false
	}
	s.ok()
	if !found || s.isNull(raw) || !s.decode(k, raw, dst) {
		s.miss(op, k)
		return false
	}
	s.hit(op, k)
	return true
}

// Del removes key and reports whether it existed.
func (s *Store) Del(ctx context.Context, key string, opts ...Option) bool {
	if !s.enabled {
		return false
	}
	k := s.storageKey(key, collect(opts))

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.provider.Del(ctx, k)
	if err != nil {
		s.fail("del", k, err)
		return false
	}
	s.ok()
	return n > 0
}

func (s *Store) Exists(ctx context.Context, key string, opts ...Option) bool {
	if !s.enabled {
		return false
	}
	k := s.storageKey(key, collect(opts))

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.provider.Exists(ctx, k)
	if err != nil {
		s.fail("exists", k, err)
		return false
	}
	s.ok()
	return ok
}

// TTL returns the remaining lifetime in seconds, -1 for keys without expiry
// and -2 for missing keys or when the backend is unavailable.
func (s *Store) TTL(ctx context.Context, key string, opts ...Option) int64 {
	if !s.enabled {
		return pr.Missing
	}
	k := s.storageKey(key, collect(opts))

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ttl, err := s.provider.TTL(ctx, k)
	if err != nil {
		s.fail("ttl", k, err)
		return pr.Missing
	}
	s.ok()
	return ttl
}

// Expire sets a new lifetime on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, opts ...Option) bool {
	if !s.enabled {
		return false
	}
	k := s.storageKey(key, collect(opts))

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.provider.Expire(ctx, k, ttl)
	if err != nil {
		s.fail("expire", k, err)
		return false
	}
	s.ok()
	return ok
}

// Incr adds one to an integer counter (missing => 0) and returns the new value,
// or 0 when the backend is unavailable.
func (s *Store) Incr(ctx context.Context, key string, opts ...Option) int64 {
	return s.incrBy(ctx, "incr", key, 1, collect(opts))
}

func (s *Store) Decr(ctx context.Context, key string, opts ...Option) int64 {
	return s.incrBy(ctx, "decr", key, -1, collect(opts))
}

// Counter reads an integer maintained by Incr/Decr. Counters are stored as
// plain decimal text by the backend, so the codec is bypassed. Missing keys,
// non-integer values and backend failures read as 0.
func (s *Store) Counter(ctx context.Context, key string, opts ...Option) int64 {
	if !s.enabled {
		return 0
	}
	k := s.storageKey(key, collect(opts))

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	raw, found, err := s.provider.Get(ctx, k)
	if err != nil {
		s.fail("counter", k, err)
		return 0
	}
	s.ok()
	if !found {
		s.miss("counter", k)
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.log.Warn("cache counter is not an integer", Fields{"key": k, "err": err.Error()})
		s.miss("counter", k)
		return 0
	}
	s.hit("counter", k)
	return n
}

func (s *Store) incrBy(ctx context.Context, op, key string, delta int64, o callOpts) int64 {
	if !s.enabled {
		return 0
	}
	k := s.storageKey(key, o)

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.provider.IncrBy(ctx, k, delta)
	if err != nil {
		s.fail(op, k, err)
		return 0
	}
	s.ok()
	return n
}

// MGet returns one slot per key; nil marks a miss. A backend failure yields
// all nils.
func MGet[T any](ctx context.Context, s *Store, keys []string, opts ...Option) []*T {
	out := make([]*T, len(keys))
	if !s.enabled || len(keys) == 0 {
		return out
	}
	ks := s.storageKeys(keys, collect(opts))

	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	raws, err := s.provider.MGet(cctx, ks...)
	if err != nil {
		s.fail("mget", "", err)
		return out
	}
	s.ok()
	for i, raw := range raws {
		if raw == nil || s.isNull(raw) {
			s.miss("mget", ks[i])
			continue
		}
		v := new(T)
		if !s.decode(ks[i], raw, v) {
			s.miss("mget", ks[i])
			continue
		}
		out[i] = v
		s.hit("mget", ks[i])
	}
	return out
}

// MSet writes every item with the same TTL in one backend round trip.
func (s *Store) MSet(ctx context.Context, items map[string]any, opts ...Option) {
	if !s.enabled || len(items) == 0 {
		return
	}
	o := collect(opts)
	enc := make(map[string][]byte, len(items))
	for key, v := range items {
		k := s.storageKey(key, o)
		enc[k] = s.encode(k, v)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.provider.MSet(ctx, enc, o.ttl); err != nil {
		s.fail("mset", "", err)
		return
	}
	s.ok()
}

// Flush deletes keys under the default prefix. An empty pattern clears the
// whole namespace; otherwise only keys matching prefix+pattern go. Returns the
// number of deleted keys, 0 on failure.
func (s *Store) Flush(ctx context.Context, pattern string) int {
	if !s.enabled {
		return 0
	}
	if pattern == "" {
		pattern = "*"
	}
	full := s.prefix + pattern

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	keys, err := s.provider.Keys(ctx, full)
	if err != nil {
		s.fail("flush", full, err)
		return 0
	}
	if len(keys) == 0 {
		s.ok()
		return 0
	}
	n, err := s.provider.Del(ctx, keys...)
	if err != nil {
		s.fail("flush", full, err)
		return 0
	}
	s.ok()
	s.log.Info("cache flushed", Fields{"pattern": full, "deleted": n})
	return int(n)
}
