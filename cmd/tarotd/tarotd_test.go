package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func redisEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("CACHE_DRIVER", config.DriverRedis)
	t.Setenv("REDIS_KEY_PREFIX", "tarot:")
	t.Setenv("LOG_LEVEL", "error")
	return mr
}

func TestCacheFlushCommand(t *testing.T) {
	mr := redisEnv(t)
	require.NoError(t, mr.Set("tarot:card:1", "{}"))
	require.NoError(t, mr.Set("tarot:card:2", "{}"))
	require.NoError(t, mr.Set("tarot:cards:list:all", "[]"))
	require.NoError(t, mr.Set("other:card:1", "{}"))

	out, err := run(t, "cache", "flush", "card:*")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 keys")
	assert.True(t, mr.Exists("tarot:cards:list:all"))
	assert.True(t, mr.Exists("other:card:1"))

	out, err = run(t, "cache", "flush")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 keys")
	assert.True(t, mr.Exists("other:card:1"))
}

func TestCacheFlushUnreachable(t *testing.T) {
	mr := redisEnv(t)
	mr.Close()
	_, err := run(t, "cache", "flush")
	assert.Error(t, err)
}

func TestCacheStatsCommand(t *testing.T) {
	mr := redisEnv(t)
	require.NoError(t, mr.Set("tarot:card:1", "{}"))

	out, err := run(t, "cache", "stats")
	require.NoError(t, err)
	var st tarotcache.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.True(t, st.Connected)
	assert.Equal(t, "tarot:", st.Prefix)
	assert.Equal(t, "json", st.Codec)
	assert.EqualValues(t, 1, st.Backend.Keys)
}

func TestConfigFlag(t *testing.T) {
	redisEnv(t)
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("cache:\n  codec: gob\n"), 0o600))
	_, err := run(t, "--config", p, "cache", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.codec")
}

func TestNewLoggerBackends(t *testing.T) {
	for _, backend := range []string{"zap", "logrus", "slog"} {
		t.Run(backend, func(t *testing.T) {
			l, flush, err := newLogger(config.Log{Backend: backend, Level: "info", Format: "json"})
			require.NoError(t, err)
			l.Debug("dropped", nil)
			flush()
		})
	}
	_, _, err := newLogger(config.Log{Backend: "zap", Level: "loud"})
	assert.Error(t, err)
}

func TestNewCacheMemoryDriver(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.Cache.Driver = config.DriverMemory
	cfg.Cache.Codec = "msgpack"

	rt, err := newCache(ctx, cfg, tarotcache.NopLogger{}, prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close(ctx)

	require.NoError(t, rt.Store.Connect(ctx))
	rt.Store.Set(ctx, "card:1", map[string]any{"name": "The Fool"})
	got, ok := tarotcache.Get[map[string]any](ctx, rt.Store, "card:1")
	require.True(t, ok)
	assert.Equal(t, "The Fool", got["name"])
	assert.Equal(t, "msgpack", rt.Store.Stats(ctx).Codec)
}
