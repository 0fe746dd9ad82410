package tarotcache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths; wrap slow sinks with hooks/async.
type Hooks interface {
	// A read found a value. op ∈ {"get", "mget", "get_or_fetch"}
	Hit(op, storageKey string)
	// A read found nothing (or nothing decodable).
	Miss(op, storageKey string)

	// The provider failed or timed out; the store returned its safe default.
	BackendError(op, storageKey string, err error)

	// The codec rejected a value on write; its string form was stored instead.
	EncodeFallback(storageKey string, err error)
	// The codec rejected stored bytes; the raw string was returned or the read missed.
	DecodeFallback(storageKey string, err error)

	// GetOrFetch ran the fetcher after a miss.
	Fetched(storageKey string, took time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, string)                 {}
func (NopHooks) Miss(string, string)                {}
func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) EncodeFallback(string, error)       {}
func (NopHooks) DecodeFallback(string, error)       {}
func (NopHooks) Fetched(string, time.Duration)      {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

func (m MultiHooks) Hit(op, k string) {
	for _, h := range m {
		h.Hit(op, k)
	}
}

func (m MultiHooks) Miss(op, k string) {
	for _, h := range m {
		h.Miss(op, k)
	}
}

func (m MultiHooks) BackendError(op, k string, err error) {
	for _, h := range m {
		h.BackendError(op, k, err)
	}
}

func (m MultiHooks) EncodeFallback(k string, err error) {
	for _, h := range m {
		h.EncodeFallback(k, err)
	}
}

func (m MultiHooks) DecodeFallback(k string, err error) {
	for _, h := range m {
		h.DecodeFallback(k, err)
	}
}

func (m MultiHooks) Fetched(k string, took time.Duration) {
	for _, h := range m {
		h.Fetched(k, took)
	}
}
