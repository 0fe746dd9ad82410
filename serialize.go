package tarotcache

import (
	"bytes"
	"fmt"
)

// isNull reports whether raw is the codec's encoding of nil.
func (s *Store) isNull(raw []byte) bool {
	return s.null != nil && bytes.Equal(raw, s.null)
}

// encode never fails: values the codec rejects are stored as their fmt
// string form.
func (s *Store) encode(storageKey string, v any) []byte {
	b, err := s.codec.Marshal(v)
	if err == nil {
		return b
	}
	s.log.Warn("cache encode failed, storing string form", Fields{"key": storageKey, "codec": s.codec.Name(), "err": err.Error()})
	s.hooks.EncodeFallback(storageKey, err)

	str := fmt.Sprint(v)
	if b, err := s.codec.Marshal(str); err == nil {
		return b
	}
	return []byte(str)
}

// decode fills dst from raw. When the codec rejects the bytes, destinations
// that can hold a string receive the raw text; anything else is reported as
// undecodable.
func (s *Store) decode(storageKey string, raw []byte, dst any) bool {
	err := s.codec.Unmarshal(raw, dst)
	if err == nil {
		return true
	}
	s.hooks.DecodeFallback(storageKey, err)

	switch d := dst.(type) {
	case *string:
		*d = string(raw)
	case *any:
		*d = string(raw)
	default:
		s.log.Warn("cache decode failed", Fields{"key": storageKey, "codec": s.codec.Name(), "err": err.Error()})
		return false
	}
	s.log.Debug("cache decode failed, returning raw string", Fields{"key": storageKey, "codec": s.codec.Name()})
	return true
}
