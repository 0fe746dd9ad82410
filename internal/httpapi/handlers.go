package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/internal/interpret"
	"github.com/unkn0wn-root/tarotcache/rendezvous"
)

const posterCacheControl = "public, max-age=604800"

func (s *server) createSession(c *fiber.Ctx) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	id, err := s.Sessions.Create(c.UserContext(), uid)
	if err != nil {
		return err
	}
	return success(c, fiber.Map{"sessionId": id})
}

func (s *server) sessionMeta(c *fiber.Ctx) error {
	m, err := s.Sessions.Meta(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, m)
}

type submitRequest struct {
	SessionID string                    `json:"sessionId"`
	Cards     []interpret.CardSelection `json:"cards"`
	Question  string                    `json:"question"`
}

func (s *server) submit(c *fiber.Ctx) error {
	uid, err := requireUser(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if req.SessionID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing sessionId")
	}
	st, err := s.Sessions.Submit(c.UserContext(), req.SessionID, rendezvous.Submission{
		UserID:   uid,
		Cards:    req.Cards,
		Question: req.Question,
	})
	if err != nil {
		return err
	}
	return success(c, st)
}

func (s *server) pollSession(c *fiber.Ctx) error {
	return success(c, s.Sessions.Poll(c.UserContext(), c.Params("id")))
}

func (s *server) sessionDetail(c *fiber.Ctx) error {
	d, err := s.Sessions.Detail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, d)
}

func (s *server) uploadPoster(c *fiber.Ctx) error {
	var req struct {
		Data string `json:"data"`
	}
	if err := c.BodyParser(&req); err != nil || req.Data == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing data")
	}
	id, err := s.Posters.Put(c.UserContext(), userID(c), req.Data)
	if err != nil {
		return err
	}
	return success(c, fiber.Map{"id": id, "url": "/api/divination/poster/" + id})
}

func (s *server) getPoster(c *fiber.Ctx) error {
	img, err := s.Posters.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, img.MimeType)
	c.Set(fiber.HeaderCacheControl, posterCacheControl)
	return c.Send(img.Bytes)
}

func (s *server) listCards(c *fiber.Ctx) error {
	list, err := s.Cards.List(c.UserContext(), c.Query("type"))
	if err != nil {
		return err
	}
	return success(c, list)
}

func (s *server) searchCards(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing q")
	}
	list, err := s.Cards.Search(c.UserContext(), q, c.Query("type"))
	if err != nil {
		return err
	}
	return success(c, list)
}

func (s *server) randomCards(c *fiber.Ctx) error {
	n := c.QueryInt("count", 3)
	drawn, err := s.Cards.Random(c.UserContext(), n)
	if err != nil {
		return err
	}
	return success(c, drawn)
}

// dailyCard is keyed by the caller's user id, falling back to the client IP
// for anonymous visitors.
func (s *server) dailyCard(c *fiber.Ctx) error {
	who := userID(c)
	if who == "" {
		who = "ip_" + c.IP()
	}
	card, err := s.Cards.Daily(c.UserContext(), who)
	if err != nil {
		return err
	}
	return success(c, card)
}

func (s *server) cardByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid card id")
	}
	card, err := s.Cards.ByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return success(c, card)
}

func (s *server) cacheStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	return success(c, fiber.Map{
		"cache":             s.Cache.Stats(ctx),
		"completedSessions": s.Sessions.Completed(ctx),
	})
}

func (s *server) flushCache(c *fiber.Ctx) error {
	pattern := c.Query("pattern")
	n := s.Cache.Flush(c.UserContext(), pattern)
	s.Logger.Info("cache flushed by admin", tarotcache.Fields{"pattern": pattern, "deleted": n, "ip": c.IP()})
	return success(c, fiber.Map{"pattern": pattern, "deleted": n})
}

// health reports 200 while the process can serve; a lost cache only degrades
// the status since every cache read has a fallback.
func (s *server) health(c *fiber.Ctx) error {
	ctx := c.UserContext()
	connected := s.Cache.Ping(ctx) == nil
	status := "ok"
	if !connected {
		status = "degraded"
	}
	body := fiber.Map{
		"status": status,
		"cache": fiber.Map{
			"enabled":   s.Cache.Enabled(),
			"connected": connected,
			"prefix":    s.Cache.Prefix(),
		},
	}
	if s.DB != nil {
		db := "ok"
		if err := s.DB.Ping(ctx); err != nil {
			db = err.Error()
			body["status"] = "degraded"
		}
		body["database"] = db
	}
	return c.JSON(body)
}
