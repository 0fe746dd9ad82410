package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	UserID   string   `json:"userId"`
	Cards    []string `json:"cards"`
	Question string   `json:"question"`
	Score    int      `json:"score"`
}

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var out []Codec
	for _, n := range []string{"json", "msgpack", "cbor", "proto"} {
		c, err := ByName(n)
		require.NoError(t, err, n)
		out = append(out, c)
	}
	return out
}

func TestRoundTripStruct(t *testing.T) {
	in := reading{UserID: "u1", Cards: []string{"0", "7", "21"}, Question: "us?", Score: 42}
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Marshal(in)
			require.NoError(t, err)
			var out reading
			require.NoError(t, c.Unmarshal(b, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestRoundTripIntoAny(t *testing.T) {
	for _, c := range allCodecs(t) {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Marshal(map[string]any{"name": "The Fool"})
			require.NoError(t, err)
			var out any
			require.NoError(t, c.Unmarshal(b, &out))
			m, ok := out.(map[string]any)
			require.True(t, ok, "got %T", out)
			assert.Equal(t, "The Fool", m["name"])
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("yaml")
	require.Error(t, err)
	assert.Equal(t, []string{"cbor", "json", "msgpack", "proto", "raw"}, Names())
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit{Inner: JSON{}, MaxDecode: 8}
	b, err := c.Marshal(strings.Repeat("x", 20))
	require.NoError(t, err)

	var s string
	err = c.Unmarshal(b, &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload too large")

	require.NoError(t, c.Unmarshal([]byte(`"ok"`), &s))
	assert.Equal(t, "ok", s)
	assert.Equal(t, "json", c.Name())
}

func TestRaw(t *testing.T) {
	var c Raw
	b, err := c.Marshal("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	_, err = c.Marshal(42)
	require.Error(t, err)

	var s string
	require.NoError(t, c.Unmarshal(b, &s))
	assert.Equal(t, "hello", s)

	var n int
	require.Error(t, c.Unmarshal(b, &n))
}
