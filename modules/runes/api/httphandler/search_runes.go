package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
)

type searchRunesRequest struct {
	Prefix string `query:"s"`
	Limit  int32  `query:"limit"`
}

func (r *searchRunesRequest) Validate() error {
	if r.Prefix == "" {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "search prefix \"s\" is required")
	}
	if r.Limit < 0 {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "limit must not be negative")
	}
	return nil
}

type searchRunesResponse struct {
	Records []tokenRecord `json:"records"`
}

func (h *HttpHandler) SearchRunes(ctx *fiber.Ctx) error {
	var req searchRunesRequest
	if err := ctx.QueryParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	entries, err := h.usecase.SearchRuneEntries(ctx.UserContext(), req.Prefix, req.Limit)
	if err != nil {
		return errors.Wrap(err, "error during SearchRuneEntries")
	}

	records, err := newTokenRecords(entries)
	if err != nil {
		return errors.Wrap(err, "can't build token records")
	}
	return errors.WithStack(ctx.JSON(searchRunesResponse{Records: records}))
}
