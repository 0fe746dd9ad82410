package redis

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/tarotcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const scanCount = 512

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Dial builds a client from either a redis:// URL or discrete fields and wraps
// it in a provider that owns the client.
func Dial(url, addr, password string, db int) (*Redis, error) {
	var opts *goredis.Options
	if url != "" {
		o, err := goredis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		opts = o
	} else {
		opts = &goredis.Options{Addr: addr, Password: password, DB: db}
	}
	return New(Config{Client: goredis.NewClient(opts), CloseClient: true})
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0 // non-positive TTLs mean "no expiry"; negative would be KEEPTTL
	}
	return p.rdb.Set(ctx, key, value, ttl).Err()
}

func (p *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0
	}
	return p.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (p *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return p.rdb.Del(ctx, keys...).Result()
}

func (p *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.rdb.Exists(ctx, key).Result()
	return n == 1, err
}

// TTL maps go-redis' raw -1/-2 durations back to the provider sentinels.
func (p *Redis) TTL(ctx context.Context, key string) (int64, error) {
	d, err := p.rdb.TTL(ctx, key).Result()
	if err != nil {
		return pr.Missing, err
	}
	switch d {
	case -2:
		return pr.Missing, nil
	case -1:
		return pr.Persistent, nil
	}
	return int64(d / time.Second), nil
}

func (p *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return p.rdb.Expire(ctx, key, ttl).Result()
}

func (p *Redis) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return p.rdb.IncrBy(ctx, key, delta).Result()
}

func (p *Redis) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = []byte(vv)
		case []byte:
			out[i] = vv
		}
	}
	return out, nil
}

// MSet pipelines one SET per item so every key gets the same TTL in a single
// round trip (MSET itself cannot carry expiries).
func (p *Redis) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = 0
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range items {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return err
}

// Keys walks the keyspace with SCAN instead of KEYS so large namespaces do not
// block the server.
func (p *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

var infoField = regexp.MustCompile(`(?m)^([a-z_]+):(\d+)\r?$`)

func (p *Redis) Info(ctx context.Context) (pr.Info, error) {
	// Default INFO already carries the stats, memory and clients sections.
	raw, err := p.rdb.Info(ctx).Result()
	if err != nil {
		return pr.Info{}, err
	}
	info := parseInfo(raw)
	if n, err := p.rdb.DBSize(ctx).Result(); err == nil {
		info.Keys = n
	}
	return info, nil
}

func parseInfo(raw string) pr.Info {
	var info pr.Info
	for _, m := range infoField.FindAllStringSubmatch(raw, -1) {
		n, err := strconv.ParseInt(strings.TrimSpace(m[2]), 10, 64)
		if err != nil {
			continue
		}
		switch m[1] {
		case "keyspace_hits":
			info.KeyspaceHits = n
		case "keyspace_misses":
			info.KeyspaceMisses = n
		case "used_memory":
			info.UsedMemory = n
		case "connected_clients":
			info.ConnectedClients = n
		}
	}
	return info
}

func (p *Redis) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
