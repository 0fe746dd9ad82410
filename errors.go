package tarotcache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var ErrNoProvider = errors.New("tarotcache: provider is required")

// OpError records a backend failure the Store absorbed.
type OpError struct {
	Op  string
	Key string // storage key; empty for keyless ops (flush, stats, ping)
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
