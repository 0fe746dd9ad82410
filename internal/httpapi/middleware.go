package httpapi

import (
	"crypto/subtle"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/tarotcache"
)

const (
	HeaderUserID     = "X-User-Id"
	HeaderAdminToken = "X-Admin-Token"
	HeaderCache      = "X-Cache"
	HeaderCacheKey   = "X-Cache-Key"

	responseKeyPrefix = "api:"
	maxLimiters       = 10_000
)

func userID(c *fiber.Ctx) string { return c.Get(HeaderUserID) }

func requireUser(c *fiber.Ctx) (string, error) {
	uid := userID(c)
	if uid == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing "+HeaderUserID)
	}
	return uid, nil
}

// cachedResponse is what the response cache keeps per URL.
type cachedResponse struct {
	ContentType string `json:"contentType"`
	Body        string `json:"body"`
}

// responseCache serves GETs from the cache keyed by method and full URL and
// stores successful responses for ResponseTTL.
func (s *server) responseCache(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodGet {
		return c.Next()
	}
	ctx := c.UserContext()
	key := responseKeyPrefix + c.Method() + ":" + c.OriginalURL()

	if hit, ok := tarotcache.Get[cachedResponse](ctx, s.Cache, key); ok {
		c.Set(HeaderCache, "HIT")
		c.Set(HeaderCacheKey, key)
		c.Set(fiber.HeaderContentType, hit.ContentType)
		return c.SendString(hit.Body)
	}
	c.Set(HeaderCache, "MISS")

	if err := c.Next(); err != nil {
		return err
	}
	switch c.Response().StatusCode() {
	case fiber.StatusOK, fiber.StatusCreated:
		s.Cache.Set(ctx, key, cachedResponse{
			ContentType: string(c.Response().Header.ContentType()),
			Body:        string(c.Response().Body()),
		}, tarotcache.WithTTL(s.ResponseTTL))
	}
	return nil
}

func (s *server) requireAdmin(c *fiber.Ctx) error {
	tok := c.Get(HeaderAdminToken)
	if s.AdminToken == "" || subtle.ConstantTimeCompare([]byte(tok), []byte(s.AdminToken)) != 1 {
		return fiber.NewError(fiber.StatusForbidden, "admin token required")
	}
	return c.Next()
}

// rateLimiter keeps one token bucket per client IP. The table is dropped
// wholesale once it grows past maxLimiters.
type rateLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byIP  map[string]*rate.Limiter
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = max(1, int(rps))
	}
	return &rateLimiter{rps: rate.Limit(rps), burst: burst, byIP: make(map[string]*rate.Limiter)}
}

func (l *rateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byIP[ip]
	if !ok {
		if len(l.byIP) >= maxLimiters {
			l.byIP = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.rps, l.burst)
		l.byIP[ip] = lim
	}
	return lim
}

func (l *rateLimiter) handler(c *fiber.Ctx) error {
	if !l.get(c.IP()).Allow() {
		return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
	}
	return c.Next()
}
