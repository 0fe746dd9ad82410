// Package asynchook moves hook work off the cache hot path.
//
// usage:
//
//	raw := loghooks.New(logger, loghooks.Options{MissEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := tarotcache.New(tarotcache.Options{
//	    Provider: provider,
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tarotcache"
)

// Hooks forwards events to inner from a fixed worker pool. Events that do not
// fit in the queue are dropped and counted.
type Hooks struct {
	inner   tarotcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ tarotcache.Hooks = (*Hooks)(nil)

func New(inner tarotcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events arriving after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full
// or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// lost the race with Close: send on closed channel
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(op, k string)  { h.try(func() { h.inner.Hit(op, k) }) }
func (h *Hooks) Miss(op, k string) { h.try(func() { h.inner.Miss(op, k) }) }
func (h *Hooks) BackendError(op, k string, err error) {
	h.try(func() { h.inner.BackendError(op, k, err) })
}
func (h *Hooks) EncodeFallback(k string, err error) {
	h.try(func() { h.inner.EncodeFallback(k, err) })
}
func (h *Hooks) DecodeFallback(k string, err error) {
	h.try(func() { h.inner.DecodeFallback(k, err) })
}
func (h *Hooks) Fetched(k string, took time.Duration) {
	h.try(func() { h.inner.Fetched(k, took) })
}
