package httphandler

import (
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
)

type getPairRequest struct {
	Pair string `params:"pair"`
}

func (r *getPairRequest) Validate() error {
	pair, err := url.QueryUnescape(r.Pair)
	if err != nil {
		return errs.WithPublicMessage(errors.Join(err, errs.InvalidArgument), "invalid pair")
	}
	r.Pair = pair
	if r.Pair == "" {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "pair is required")
	}
	return nil
}

func (h *HttpHandler) GetPair(ctx *fiber.Ctx) error {
	var req getPairRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	info, err := h.usecase.GetPair(ctx.UserContext(), req.Pair)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errors.WithStack(fiber.ErrNotFound)
		}
		return errors.Wrap(err, "error during GetPair")
	}

	return errors.WithStack(ctx.JSON(newPairRecord(info)))
}
