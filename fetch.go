package tarotcache

import (
	"context"
	"time"
)

// FetchFunc loads the authoritative value on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// GetOrFetch returns the cached value for key or, on a miss, runs fetch and
// caches its result with the given options. Fetch errors are returned as-is
// and nothing is cached. There is no locking: concurrent misses may each run
// fetch.
func GetOrFetch[T any](ctx context.Context, s *Store, key string, fetch FetchFunc[T], opts ...Option) (T, error) {
	o := collect(opts)
	if v, ok := getAs[T](ctx, s, "get_or_fetch", key, o); ok {
		return v, nil
	}

	start := time.Now()
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.fetches.Add(1)
	s.hooks.Fetched(s.storageKey(key, o), time.Since(start))

	s.Set(ctx, key, v, opts...)
	return v, nil
}
