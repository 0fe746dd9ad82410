package tarotcache

import (
	"time"

	c "github.com/unkn0wn-root/tarotcache/codec"
	pr "github.com/unkn0wn-root/tarotcache/provider"
)

// Options configure a Store. Only Provider is required.
type Options struct {
	Provider  pr.Provider
	Codec     c.Codec       // nil => codec.JSON
	Prefix    string        // "" => DefaultPrefix
	Logger    Logger        // nil => NopLogger
	Hooks     Hooks         // nil => NopHooks
	OpTimeout time.Duration // per backend call; 0 => 2s
	Disabled  bool          // true => every read misses, writes are dropped
}

// Option tunes a single call.
type Option func(*callOpts)

type callOpts struct {
	ttl       time.Duration
	prefix    string
	hasPrefix bool
}

// WithTTL sets the entry lifetime. Zero or negative means no expiry.
func WithTTL(d time.Duration) Option {
	return func(o *callOpts) { o.ttl = d }
}

// WithPrefix replaces the store's default prefix for this call. An empty
// prefix is honoured and addresses the raw key.
func WithPrefix(p string) Option {
	return func(o *callOpts) { o.prefix, o.hasPrefix = p, true }
}

func collect(opts []Option) callOpts {
	var o callOpts
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
