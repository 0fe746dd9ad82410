// Package bigcache is an in-process Provider for local development, tests and
// single-replica deployments. BigCache only knows one global LifeWindow, so
// per-entry TTLs are carried in a wire frame and enforced on read.
package bigcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tarotcache/internal/util"
	"github.com/unkn0wn-root/tarotcache/internal/wire"
	pr "github.com/unkn0wn-root/tarotcache/provider"
)

type Provider struct {
	c     *bc.BigCache
	match *util.Matcher
	now   func() time.Time

	// mu serialises writers so read-modify-write ops (SetNX, IncrBy, Expire)
	// observe a stable value. Plain reads go straight to BigCache.
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // upper bound for every entry, TTL or not; 0 => 30d
	CleanWindow        time.Duration // 0 => 5m
	Shards             int
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited

	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = 30 * 24 * time.Hour
	}
	conf := bc.DefaultConfig(life)
	// DefaultConfig sizes for 600k entries up front; start much smaller and
	// let shards grow.
	conf.Shards = 64
	conf.MaxEntriesInWindow = 10_000
	conf.MaxEntrySize = 512
	conf.CleanWindow = 5 * time.Minute
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	conf.Verbose = false

	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{c: c, match: util.NewMatcher(), now: now}, nil
}

func (p *Provider) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return p.now().Add(ttl)
}

// load returns the live frame for key. Expired or corrupt frames are deleted
// and reported as a miss.
func (p *Provider) load(key string) (time.Time, []byte, bool, error) {
	raw, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return time.Time{}, nil, false, nil
	}
	if err != nil {
		return time.Time{}, nil, false, err
	}
	exp, payload, err := wire.DecodeEntry(raw)
	if err != nil || wire.Expired(exp, p.now()) {
		_ = p.c.Delete(key) // self-heal
		return time.Time{}, nil, false, nil
	}
	return exp, payload, true, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	_, payload, ok, err := p.load(key)
	if !ok || err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.c.Set(key, wire.EncodeEntry(p.expiry(ttl), value))
}

func (p *Provider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _, ok, err := p.load(key)
	if err != nil || ok {
		return false, err
	}
	if err := p.c.Set(key, wire.EncodeEntry(p.expiry(ttl), value)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, keys ...string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, _, ok, _ := p.load(k); !ok {
			continue
		}
		err := p.c.Delete(k)
		if errors.Is(err, bc.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (p *Provider) Exists(_ context.Context, key string) (bool, error) {
	_, _, ok, err := p.load(key)
	return ok, err
}

func (p *Provider) TTL(_ context.Context, key string) (int64, error) {
	exp, _, ok, err := p.load(key)
	if err != nil {
		return pr.Missing, err
	}
	if !ok {
		return pr.Missing, nil
	}
	if exp.IsZero() {
		return pr.Persistent, nil
	}
	// Round up like Redis: a live key never reports 0.
	d := exp.Sub(p.now())
	return int64((d + time.Second - 1) / time.Second), nil
}

func (p *Provider) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, payload, ok, err := p.load(key)
	if err != nil || !ok {
		return false, err
	}
	if ttl <= 0 {
		// Redis deletes a key given a non-positive expiry.
		_ = p.c.Delete(key)
		return true, nil
	}
	return true, p.c.Set(key, wire.EncodeEntry(p.expiry(ttl), payload))
}

var errNotInteger = errors.New("bigcache provider: value is not an integer")

func (p *Provider) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp, payload, ok, err := p.load(key)
	if err != nil {
		return 0, err
	}
	var cur int64
	if ok {
		cur, err = strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
	}
	cur += delta
	// INCR keeps an existing TTL.
	if err := p.c.Set(key, wire.EncodeEntry(exp, []byte(strconv.FormatInt(cur, 10)))); err != nil {
		return 0, err
	}
	return cur, nil
}

func (p *Provider) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		_, payload, ok, err := p.load(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = payload
		}
	}
	return out, nil
}

func (p *Provider) MSet(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	exp := p.expiry(ttl)
	for k, v := range items {
		if err := p.c.Set(k, wire.EncodeEntry(exp, v)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) Keys(_ context.Context, pattern string) ([]string, error) {
	now := p.now()
	var out []string
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			continue // entry removed while iterating
		}
		if !p.match.Match(pattern, e.Key()) {
			continue
		}
		exp, _, err := wire.DecodeEntry(e.Value())
		if err != nil || wire.Expired(exp, now) {
			continue
		}
		out = append(out, e.Key())
	}
	return out, nil
}

func (p *Provider) Info(context.Context) (pr.Info, error) {
	st := p.c.Stats()
	return pr.Info{
		KeyspaceHits:     st.Hits,
		KeyspaceMisses:   st.Misses,
		UsedMemory:       int64(p.c.Capacity()),
		ConnectedClients: 1,
		Keys:             int64(p.c.Len()),
	}, nil
}

func (p *Provider) Ping(context.Context) error { return nil }

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
