package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
)

type getPairsResponse struct {
	Records []pairRecord `json:"records"`
}

func (h *HttpHandler) GetPairs(ctx *fiber.Ctx) error {
	infos, err := h.usecase.ListPairs(ctx.UserContext())
	if err != nil {
		return errors.Wrap(err, "error during ListPairs")
	}

	return errors.WithStack(ctx.JSON(getPairsResponse{
		Records: newPairRecords(infos),
	}))
}
