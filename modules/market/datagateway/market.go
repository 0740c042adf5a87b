package datagateway

import (
	"context"
	"time"

	"github.com/runixlabs/runes-indexer/modules/market/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
)

type PairsDataGateway interface {
	// GetPairs lists all trading pairs ordered by creation time.
	GetPairs(ctx context.Context) ([]*entity.TradingPair, error)
	// GetPair returns errs.NotFound if the pair does not exist.
	GetPair(ctx context.Context, baseRuneId runes.RuneId, quoteAsset string) (*entity.TradingPair, error)
	CreatePair(ctx context.Context, pair *entity.TradingPair) error
	UpdatePairLatestTrade(ctx context.Context, pairId int64, price, volume string) error
}

type PriceTimeseriesDataGateway interface {
	InsertPricePoints(ctx context.Context, points []*entity.PricePoint) error
	// GetCandles aggregates price points into OHLC buckets of the given
	// scale, ordered by bucket start ascending.
	GetCandles(ctx context.Context, pairId int64, scale entity.Scale, start, end time.Time) ([]*entity.Candle, error)
}
