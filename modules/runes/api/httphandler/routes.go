package httphandler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *HttpHandler) Mount(router fiber.Router) error {
	r := router.Group("/v1")

	r.Get("/status", h.GetStatus)
	r.Get("/runes/search", h.SearchRunes)
	r.Get("/runes/:name", h.GetRune)
	r.Get("/runes", h.GetRunes)
	return nil
}
