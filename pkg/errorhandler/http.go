package errorhandler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
)

// NewHTTPErrorHandler renders handler errors as JSON. Public errors keep
// their message, everything else is masked as an internal server error.
func NewHTTPErrorHandler() fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		if e := new(errs.PublicError); errors.As(err, &e) {
			body := map[string]any{"error": e.Message()}
			if e.Code() != "" {
				body["code"] = e.Code()
			}
			return errors.WithStack(ctx.Status(http.StatusBadRequest).JSON(body))
		}
		if errors.Is(err, errs.NotFound) {
			return errors.WithStack(ctx.Status(http.StatusNotFound).JSON(map[string]any{
				"error": "not found",
			}))
		}
		if e := new(fiber.Error); errors.As(err, &e) {
			return errors.WithStack(ctx.Status(e.Code).SendString(e.Error()))
		}

		logger.ErrorContext(ctx.UserContext(), "unhandled api error", err,
			slogx.String("event", "api_unhandled_error"),
		)

		return errors.WithStack(ctx.Status(http.StatusInternalServerError).JSON(map[string]any{
			"error": "Internal Server Error",
		}))
	}
}
