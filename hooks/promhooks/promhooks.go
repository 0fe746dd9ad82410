// Package promhooks exports cache events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tarotcache"
)

type Hooks struct {
	requests  *prometheus.CounterVec
	backend   *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	fetch     prometheus.Histogram
}

var _ tarotcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under namespace (e.g. "tarot").
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	h := &Hooks{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache reads by operation and result (hit, miss).",
		}, []string{"op", "result"}),
		backend: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "backend_errors_total",
			Help:      "Backend failures absorbed by the cache, by operation.",
		}, []string{"op"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "serialization_fallbacks_total",
			Help:      "Values stored or read through the string fallback.",
		}, []string{"direction"}),
		fetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent in read-through fetchers after a miss.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{h.requests, h.backend, h.fallbacks, h.fetch} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) Hit(op, _ string)  { h.requests.WithLabelValues(op, "hit").Inc() }
func (h *Hooks) Miss(op, _ string) { h.requests.WithLabelValues(op, "miss").Inc() }

func (h *Hooks) BackendError(op, _ string, _ error) { h.backend.WithLabelValues(op).Inc() }

func (h *Hooks) EncodeFallback(string, error) { h.fallbacks.WithLabelValues("encode").Inc() }
func (h *Hooks) DecodeFallback(string, error) { h.fallbacks.WithLabelValues("decode").Inc() }

func (h *Hooks) Fetched(_ string, took time.Duration) { h.fetch.Observe(took.Seconds()) }
