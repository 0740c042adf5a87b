package httphandler

import (
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/market/entity"
)

type getPriceHistoryRequest struct {
	Pair  string `params:"pair"`
	Scale string `query:"scale"`
	Start int64  `query:"start"`
	End   int64  `query:"end"`

	scale entity.Scale
}

func (r *getPriceHistoryRequest) Validate() error {
	pair, err := url.QueryUnescape(r.Pair)
	if err != nil {
		return errs.WithPublicMessage(errors.Join(err, errs.InvalidArgument), "invalid pair")
	}
	r.Pair = pair
	if r.Pair == "" {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "pair is required")
	}
	r.scale, err = entity.ParseScale(r.Scale)
	if err != nil {
		return errors.WithStack(err)
	}
	if r.Start < 0 || r.End < 0 {
		return errs.WithPublicMessage(errors.WithStack(errs.InvalidArgument), "start and end must be unix timestamps")
	}
	return nil
}

type candleRecord struct {
	Time   int64  `json:"time"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type getPriceHistoryResponse struct {
	Pair    string         `json:"pair"`
	Scale   string         `json:"scale"`
	Records []candleRecord `json:"records"`
}

func (h *HttpHandler) GetPriceHistory(ctx *fiber.Ctx) error {
	var req getPriceHistoryRequest
	if err := ctx.ParamsParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := ctx.QueryParser(&req); err != nil {
		return errors.WithStack(err)
	}
	if err := req.Validate(); err != nil {
		return errors.WithStack(err)
	}

	var start, end time.Time
	if req.Start > 0 {
		start = time.Unix(req.Start, 0)
	}
	if req.End > 0 {
		end = time.Unix(req.End, 0)
	}

	candles, err := h.usecase.GetPriceHistory(ctx.UserContext(), req.Pair, req.scale, start, end)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return errors.WithStack(fiber.ErrNotFound)
		}
		return errors.Wrap(err, "error during GetPriceHistory")
	}

	records := make([]candleRecord, 0, len(candles))
	for _, candle := range candles {
		records = append(records, candleRecord{
			Time:   candle.Timestamp.Unix(),
			Open:   candle.Open.String(),
			High:   candle.High.String(),
			Low:    candle.Low.String(),
			Close:  candle.Close.String(),
			Volume: candle.Volume.String(),
		})
	}
	return errors.WithStack(ctx.JSON(getPriceHistoryResponse{
		Pair:    req.Pair,
		Scale:   string(req.scale),
		Records: records,
	}))
}
