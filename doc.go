// Package tarotcache implements a provider-agnostic read-through cache with
// TTL-based key management. It backs the divination service's hot paths and
// doubles as the coordination medium for two-party relationship sessions.
//
// Components:
//   - Provider: byte store with per-key TTL (Redis, or BigCache in-process).
//   - Codec: (de)serializes values <-> []byte (JSON by default).
//   - Hooks / Logger: observability for hits, misses and backend failures.
//
// Keys:
//
//	<prefix><key>   prefix defaults to "tarot:" and can be overridden per call
//
// Failure model: the Store never returns backend errors. Every operation has a
// safe default (miss, false, 0, -2) so a cache outage degrades latency, not
// correctness. Failures are logged and surfaced through Hooks and Stats.
//
// Read-through pattern:
//
//	card, err := tarotcache.GetOrFetch(ctx, store, "card:7", loadCard, tarotcache.WithTTL(time.Hour))
package tarotcache
