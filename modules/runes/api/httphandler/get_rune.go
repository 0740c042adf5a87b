package httphandler

import (
	"net/url"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
)

type getRuneRequest struct {
	Name string `params:"name"`
}

func (r *getRuneRequest) Validate() error {
	name, err := url.QueryUnescape(r.Name)
	if err != nil {
		return errs.WithPublicMessage(errors.Join(err, errs.InvalidArgument), "invalid rune name")
	}
	r.Name = name
	if r.Name == "" {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "rune name is required")
	}
	return nil
}

func (h *HttpHandler) GetRune(ctx *fiber.Ctx) error {
	var req getRuneRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.usecase.GetRuneEntry(ctx.UserContext(), req.Name)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errors.WithStack(fiber.ErrNotFound)
		}
		return errors.Wrap(err, "error during GetRuneEntry")
	}

	record, err := newTokenRecord(entry)
	if err != nil {
		return errors.Wrap(err, "can't build token record")
	}
	return errors.WithStack(ctx.JSON(record))
}
