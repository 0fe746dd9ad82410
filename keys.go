package tarotcache

// Key returns the storage key a call with opts would address.
func (s *Store) Key(key string, opts ...Option) string {
	return s.storageKey(key, collect(opts))
}

func (s *Store) storageKey(key string, o callOpts) string {
	if o.hasPrefix {
		return o.prefix + key
	}
	return s.prefix + key
}

func (s *Store) storageKeys(keys []string, o callOpts) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.storageKey(k, o)
	}
	return out
}
