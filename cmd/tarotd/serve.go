package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/cards"
	"github.com/unkn0wn-root/tarotcache/internal/config"
	"github.com/unkn0wn-root/tarotcache/internal/httpapi"
	"github.com/unkn0wn-root/tarotcache/internal/interpret"
	"github.com/unkn0wn-root/tarotcache/internal/storage"
	"github.com/unkn0wn-root/tarotcache/internal/tracing"
	"github.com/unkn0wn-root/tarotcache/poster"
	"github.com/unkn0wn-root/tarotcache/rendezvous"
)

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	log, flush, err := newLogger(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Setup(cfg.Tracing.Stdout, nil)
	if err != nil {
		return errors.Wrap(err, "tracing")
	}
	defer func() { _ = tracing.Shutdown(context.Background(), tp) }()

	db, err := storage.Open(ctx, cfg.Database.DSN, log)
	if err != nil {
		return err
	}
	defer db.Close()

	rt, err := newCache(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()
	store := rt.Store

	// A cache outage at boot is not fatal: every read falls back to the
	// database and the store recovers on the first successful call.
	if err := store.Connect(ctx); err != nil {
		log.Warn("cache unavailable, starting degraded", tarotcache.Fields{"driver": cfg.Cache.Driver, "err": err.Error()})
	}

	cardSvc := cards.New(store, db, cards.Options{Logger: log})
	if cfg.Cache.Warm && store.Healthy() {
		if n, err := cardSvc.Warm(ctx); err != nil {
			log.Warn("card warmup failed", tarotcache.Fields{"err": err.Error()})
		} else {
			log.Info("card cache warmed", tarotcache.Fields{"cards": n})
		}
	}

	sessions, err := rendezvous.New(store, rendezvous.Options{
		Interpreter:  interpret.Local{},
		Directory:    storage.Directory{DB: db},
		Logger:       log,
		SessionTTL:   cfg.Session.TTL.D(),
		ComputeWait:  cfg.Session.ComputeWait.D(),
		PollInterval: cfg.Session.PollInterval.D(),
	})
	if err != nil {
		return err
	}
	posters, err := poster.New(store, poster.Options{
		TTL:       cfg.Poster.TTL.D(),
		MaxBytes:  cfg.Poster.MaxBytes,
		L1MaxCost: cfg.Poster.L1MaxCost,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	defer posters.Close()

	app := httpapi.New(httpapi.Deps{
		Cache:       store,
		Sessions:    sessions,
		Posters:     posters,
		Cards:       cardSvc,
		DB:          db,
		Logger:      log,
		Tracing:     &tracing.Config{TracerProvider: tp},
		AdminToken:  cfg.Server.AdminToken,
		ResponseTTL: cfg.Server.ResponseTTL.D(),
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateBurst,
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", tarotcache.Fields{"addr": addr, "driver": cfg.Cache.Driver})
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", nil)
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
		defer cancel()
		return app.ShutdownWithContext(sctx)
	})
	return g.Wait()
}
