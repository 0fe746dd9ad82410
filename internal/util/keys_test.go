package util

import "testing"

func TestMatcherRedisStylePatterns(t *testing.T) {
	m := NewMatcher()
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"tarot:*", "tarot:card:1", true},
		{"tarot:card:*", "tarot:cards:all", false},
		{"tarot:card?:*", "tarot:cards:all", true},
		{"tarot:user:*:history:*", "tarot:user:7:history:2024", true},
		{"tarot:card:[12]", "tarot:card:3", false},
		{"api:*", "tarot:api:x", false},
	}
	for _, tc := range cases {
		if got := m.Match(tc.pattern, tc.key); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}
