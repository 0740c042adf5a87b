package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
)

type getStatusResponse struct {
	Network string `json:"network"`
	Height  int64  `json:"height"`
	Hash    string `json:"hash"`
}

func (h *HttpHandler) GetStatus(ctx *fiber.Ctx) error {
	status, err := h.usecase.GetStatus(ctx.UserContext())
	if err != nil {
		return errors.Wrap(err, "error during GetStatus")
	}

	return errors.WithStack(ctx.JSON(getStatusResponse{
		Network: status.Network.String(),
		Height:  status.Height,
		Hash:    status.Hash.String(),
	}))
}
