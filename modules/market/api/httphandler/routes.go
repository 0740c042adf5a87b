package httphandler

import (
	"github.com/gofiber/fiber/v2"
)

func (h *HttpHandler) Mount(router fiber.Router) error {
	r := router.Group("/v1")

	r.Get("/pairs", h.GetPairs)
	r.Get("/pairs/:pair", h.GetPair)
	r.Get("/pairs/:pair/price-history", h.GetPriceHistory)
	return nil
}
