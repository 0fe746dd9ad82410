package httpapi

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/cards"
	"github.com/unkn0wn-root/tarotcache/internal/storage"
	"github.com/unkn0wn-root/tarotcache/poster"
	"github.com/unkn0wn-root/tarotcache/rendezvous"
)

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func success(c *fiber.Ctx, data any) error {
	return c.JSON(Envelope{Status: "success", Data: data})
}

var statusByErr = []struct {
	err  error
	code int
}{
	{rendezvous.ErrSessionNotFound, fiber.StatusNotFound},
	{poster.ErrNotFound, fiber.StatusNotFound},
	{storage.ErrNotFound, fiber.StatusNotFound},
	{rendezvous.ErrSessionFull, fiber.StatusConflict},
	{rendezvous.ErrInvalidSubmission, fiber.StatusBadRequest},
	{poster.ErrInvalidDataURL, fiber.StatusBadRequest},
	{poster.ErrUnsupportedType, fiber.StatusBadRequest},
	{cards.ErrInvalidCount, fiber.StatusBadRequest},
	{poster.ErrTooLarge, fiber.StatusRequestEntityTooLarge},
	{rendezvous.ErrUnavailable, fiber.StatusServiceUnavailable},
	{poster.ErrUnavailable, fiber.StatusServiceUnavailable},
}

func statusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return fiber.StatusInternalServerError
}

func (s *server) errorHandler(c *fiber.Ctx, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code >= fiber.StatusInternalServerError && code != fiber.StatusServiceUnavailable {
		s.Logger.Error("request failed", tarotcache.Fields{"method": c.Method(), "path": c.Path(), "err": err.Error()})
		msg = "internal server error"
	}
	return c.Status(code).JSON(Envelope{Status: "error", Message: msg})
}
