// Package httpapi exposes the divination backend over HTTP with fiber.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/cards"
	"github.com/unkn0wn-root/tarotcache/internal/storage"
	"github.com/unkn0wn-root/tarotcache/internal/tracing"
	"github.com/unkn0wn-root/tarotcache/poster"
	"github.com/unkn0wn-root/tarotcache/rendezvous"
)

const (
	DefaultResponseTTL = 300 * time.Second
	bodyLimit          = 8 << 20 // base64 posters run ~4/3 of their decoded size
)

// Deps are the services the routes call into. Cache, Sessions, Posters and
// Cards are required.
type Deps struct {
	Cache    *tarotcache.Store
	Sessions *rendezvous.Service
	Posters  *poster.Store
	Cards    *cards.Service
	DB       *storage.DB // optional; reported by /health
	Logger   tarotcache.Logger
	Gatherer prometheus.Gatherer // nil => prometheus.DefaultGatherer
	Tracing  *tracing.Config     // nil => no spans

	AdminToken  string        // empty disables the flush endpoint
	ResponseTTL time.Duration // 0 => 300s
	RateLimit   float64       // per client per second; 0 disables
	RateBurst   int
}

type server struct {
	Deps
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	if d.Logger == nil {
		d.Logger = tarotcache.NopLogger{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.ResponseTTL <= 0 {
		d.ResponseTTL = DefaultResponseTTL
	}
	s := &server{Deps: d}

	app := fiber.New(fiber.Config{
		AppName:               "tarotd",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(tracing.Middleware(d.Tracing))
	app.Use(s.accessLog)

	app.Get("/health", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	if d.RateLimit > 0 {
		api.Use(newRateLimiter(d.RateLimit, d.RateBurst).handler)
	}

	rel := api.Group("/divination/relationship/session")
	rel.Post("/create", s.createSession)
	rel.Post("/submit", s.submit)
	rel.Get("/:id/meta", s.sessionMeta)
	rel.Get("/:id/detail", s.sessionDetail)
	rel.Get("/:id", s.pollSession)

	api.Post("/divination/upload/poster", s.uploadPoster)
	api.Get("/divination/poster/:id", s.getPoster)

	api.Get("/cards", s.responseCache, s.listCards)
	api.Get("/cards/search", s.searchCards)
	api.Get("/cards/random", s.randomCards)
	api.Get("/cards/daily", s.dailyCard)
	api.Get("/cards/:id<int>", s.cardByID)

	api.Get("/cache/stats", s.cacheStats)
	api.Post("/cache/flush", s.requireAdmin, s.flushCache)

	return app
}

func (s *server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if fe, ok := err.(*fiber.Error); ok {
		status = fe.Code
	}
	s.Logger.Debug("request", tarotcache.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  status,
		"latency": time.Since(start).String(),
	})
	return err
}
