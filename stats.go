package tarotcache

import (
	"context"

	pr "github.com/unkn0wn-root/tarotcache/provider"
)

// Stats combines the backend's own counters with what this process observed.
type Stats struct {
	Enabled   bool    `json:"enabled"`
	Connected bool    `json:"connected"`
	Prefix    string  `json:"prefix"`
	Codec     string  `json:"codec"`
	Backend   pr.Info `json:"backend"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Errors    int64   `json:"errors"`
	Fetches   int64   `json:"fetches"`
	HitRate   float64 `json:"hitRate"`
	LastError string  `json:"lastError,omitempty"`
}

func (s *Store) Stats(ctx context.Context) Stats {
	st := Stats{
		Enabled: s.enabled,
		Prefix:  s.prefix,
		Codec:   s.codec.Name(),
	}
	if s.enabled {
		cctx, cancel := s.opCtx(ctx)
		info, err := s.provider.Info(cctx)
		cancel()
		if err != nil {
			s.fail("stats", "", err)
		} else {
			s.ok()
			st.Connected = true
			st.Backend = info
		}
	}

	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	st.Errors = s.errs.Load()
	st.Fetches = s.fetches.Load()
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	if err := s.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
