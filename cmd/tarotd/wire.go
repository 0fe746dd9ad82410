package main

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/codec"
	asynchook "github.com/unkn0wn-root/tarotcache/hooks/async"
	"github.com/unkn0wn-root/tarotcache/hooks/loghooks"
	"github.com/unkn0wn-root/tarotcache/hooks/promhooks"
	"github.com/unkn0wn-root/tarotcache/internal/config"
	tclogrus "github.com/unkn0wn-root/tarotcache/log/logrus"
	tcslog "github.com/unkn0wn-root/tarotcache/log/slog"
	tczap "github.com/unkn0wn-root/tarotcache/log/zap"
	pr "github.com/unkn0wn-root/tarotcache/provider"
	"github.com/unkn0wn-root/tarotcache/provider/bigcache"
	"github.com/unkn0wn-root/tarotcache/provider/redis"
)

// newLogger returns the process logger and a flush func to run on exit.
func newLogger(cfg config.Log) (tarotcache.Logger, func(), error) {
	switch cfg.Backend {
	case "logrus":
		l, err := tclogrus.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, nil, err
		}
		return tclogrus.LogrusLogger{E: l.WithField("svc", "tarotd")}, func() {}, nil
	case "slog":
		return tcslog.Logger{L: tcslog.New(os.Stderr, cfg.Level, cfg.Format)}, func() {}, nil
	default:
		l, err := tczap.New(cfg.Level, cfg.Format)
		if err != nil {
			return nil, nil, err
		}
		l = l.Named("tarotd")
		return tczap.ZapLogger{L: l}, func() { _ = l.Sync() }, nil
	}
}

func newProvider(ctx context.Context, cfg config.Config) (pr.Provider, error) {
	switch cfg.Cache.Driver {
	case config.DriverMemory:
		p, err := bigcache.New(ctx, bigcache.Config{
			LifeWindow:         cfg.Memory.LifeWindow.D(),
			CleanWindow:        cfg.Memory.CleanWindow.D(),
			HardMaxCacheSizeMB: cfg.Memory.HardMaxMB,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := redis.Dial(cfg.Redis.URL, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// cacheRuntime is a store plus whatever must be released with it.
type cacheRuntime struct {
	Store *tarotcache.Store
	async *asynchook.Hooks
}

func (r *cacheRuntime) Close(ctx context.Context) error {
	if r.async != nil {
		r.async.Close()
	}
	return r.Store.Close(ctx)
}

// newCache wires provider, codec and hooks. reg may be nil to skip metrics.
func newCache(ctx context.Context, cfg config.Config, log tarotcache.Logger, reg prometheus.Registerer) (*cacheRuntime, error) {
	cd, err := codec.ByName(cfg.Cache.Codec)
	if err != nil {
		return nil, err
	}
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "cache provider %s", cfg.Cache.Driver)
	}

	async := asynchook.New(loghooks.New(log, loghooks.Options{HitEvery: 100, MissEvery: 10}), 2, 1024)
	hooks := tarotcache.MultiHooks{async}
	if reg != nil {
		ph, err := promhooks.New(reg, "tarot")
		if err != nil {
			async.Close()
			return nil, err
		}
		hooks = append(hooks, ph)
	}

	store, err := tarotcache.New(tarotcache.Options{
		Provider:  p,
		Codec:     cd,
		Prefix:    cfg.Cache.Prefix,
		Logger:    log,
		Hooks:     hooks,
		OpTimeout: cfg.Cache.OpTimeout.D(),
		Disabled:  cfg.Cache.Disabled,
	})
	if err != nil {
		async.Close()
		return nil, err
	}
	return &cacheRuntime{Store: store, async: async}, nil
}
