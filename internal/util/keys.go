package util

import (
	"sync"

	"github.com/gobwas/glob"
)

// Matcher compiles Redis-style key patterns (*, ?, [abc]) once and reuses them.
// Compiled without separators so '*' spans ':' like Redis KEYS does.
type Matcher struct {
	mu       sync.Mutex
	compiled map[string]glob.Glob
}

// maxCompiled bounds the pattern cache; flush patterns are few and static.
const maxCompiled = 256

func NewMatcher() *Matcher {
	return &Matcher{compiled: make(map[string]glob.Glob)}
}

// Match reports whether key matches pattern. Invalid patterns match nothing.
func (m *Matcher) Match(pattern, key string) bool {
	g, err := m.get(pattern)
	if err != nil {
		return false
	}
	return g.Match(key)
}

func (m *Matcher) get(pattern string) (glob.Glob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.compiled[pattern]; ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(m.compiled) >= maxCompiled {
		m.compiled = make(map[string]glob.Glob)
	}
	m.compiled[pattern] = g
	return g, nil
}
