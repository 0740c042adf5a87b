package httphandler

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/runixlabs/runes-indexer/modules/runes/usecase"
)

type getRunesRequest struct {
	Name   string `query:"name"`
	Page   int32  `query:"page"`
	Limit  int32  `query:"limit"`
	Order  string `query:"order"`
	Cursor string `query:"cursor"`
}

func (r *getRunesRequest) Validate() error {
	var errList []error
	if r.Page < 0 {
		errList = append(errList, errors.New("page must not be negative"))
	}
	if r.Limit < 0 {
		errList = append(errList, errors.New("limit must not be negative"))
	}
	switch r.Order {
	case "", "asc", "desc":
	default:
		errList = append(errList, errors.Errorf("invalid order %q, expected \"asc\" or \"desc\"", r.Order))
	}
	if r.Cursor != "" {
		if _, err := runes.NewRuneIdFromString(r.Cursor); err != nil {
			errList = append(errList, errors.Errorf("invalid cursor %q", r.Cursor))
		}
	}
	if len(errList) > 0 {
		return errs.WithPublicMessage(errors.Join(append(errList, errs.InvalidArgument)...), "validation error")
	}
	return nil
}

type getRunesMeta struct {
	Page         int32 `json:"page"`
	Limit        int32 `json:"limit"`
	Offset       int32 `json:"offset"`
	HasMore      bool  `json:"has_more"`
	TotalRecords int64 `json:"total_records"`
}

type getRunesResponse struct {
	Meta    getRunesMeta  `json:"meta"`
	Records []tokenRecord `json:"records"`
}

type getRunesCursorResponse struct {
	NextCursor *string       `json:"next_cursor"`
	Records    []tokenRecord `json:"records"`
}

func (h *HttpHandler) GetRunes(ctx *fiber.Ctx) error {
	var req getRunesRequest
	if err := ctx.QueryParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	params := usecase.ListRuneEntriesParams{
		Search:    req.Name,
		Page:      req.Page,
		Limit:     req.Limit,
		OrderDesc: req.Order == "desc",
	}
	cursorMode := req.Cursor != ""
	if cursorMode {
		cursor, err := runes.NewRuneIdFromString(req.Cursor)
		if err != nil {
			return errs.WithPublicMessage(errors.Join(err, errs.InvalidArgument), "invalid cursor")
		}
		params.Cursor = &cursor
	}

	result, err := h.usecase.ListRuneEntries(ctx.UserContext(), params)
	if err != nil {
		return errors.Wrap(err, "error during ListRuneEntries")
	}

	records, err := newTokenRecords(result.Entries)
	if err != nil {
		return errors.Wrap(err, "can't build token records")
	}

	if cursorMode {
		var nextCursor *string
		if result.NextCursor != nil {
			cursor := result.NextCursor.String()
			nextCursor = &cursor
		}
		return errors.WithStack(ctx.JSON(getRunesCursorResponse{
			NextCursor: nextCursor,
			Records:    records,
		}))
	}

	return errors.WithStack(ctx.JSON(getRunesResponse{
		Meta: getRunesMeta{
			Page:         result.Page,
			Limit:        result.Limit,
			Offset:       result.Offset,
			HasMore:      result.HasMore,
			TotalRecords: result.TotalRecords,
		},
		Records: records,
	}))
}
