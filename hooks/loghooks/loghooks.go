// Package loghooks reports cache events through a tarotcache.Logger with
// sampling and key redaction.
package loghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tarotcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Fetches slower than this are logged at Warn; 0 => 500ms.
	SlowFetch time.Duration
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    tarotcache.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ tarotcache.Hooks = (*Hooks)(nil)

func New(l tarotcache.Logger, opts Options) *Hooks {
	if opts.SlowFetch <= 0 {
		opts.SlowFetch = 500 * time.Millisecond
	}
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(op, storageKey string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("tarotcache.hit", tarotcache.Fields{"op": op, "key": h.redact(storageKey)})
}

func (h *Hooks) Miss(op, storageKey string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("tarotcache.miss", tarotcache.Fields{"op": op, "key": h.redact(storageKey)})
}

func (h *Hooks) BackendError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	f := tarotcache.Fields{"op": op, "err": err}
	if storageKey != "" {
		f["key"] = h.redact(storageKey)
	}
	h.l.Error("tarotcache.backend_error", f)
}

func (h *Hooks) EncodeFallback(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tarotcache.encode_fallback", tarotcache.Fields{"key": h.redact(storageKey), "err": err})
}

func (h *Hooks) DecodeFallback(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tarotcache.decode_fallback", tarotcache.Fields{"key": h.redact(storageKey), "err": err})
}

func (h *Hooks) Fetched(storageKey string, took time.Duration) {
	if h.l == nil {
		return
	}
	f := tarotcache.Fields{"key": h.redact(storageKey), "took_ms": took.Milliseconds()}
	if took >= h.opts.SlowFetch {
		h.l.Warn("tarotcache.slow_fetch", f)
		return
	}
	h.l.Debug("tarotcache.fetched", f)
}
