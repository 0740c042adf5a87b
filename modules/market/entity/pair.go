package entity

import (
	"time"

	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/shopspring/decimal"
)

// TradingPair is a market between a rune and a quote asset (e.g. "BTC").
type TradingPair struct {
	Id         int64
	BaseRuneId runes.RuneId
	QuoteAsset string
	// LatestPrice is the most recent settled trade price in quote units per
	// base unit. Zero before the first trade.
	LatestPrice  decimal.Decimal
	LatestVolume decimal.Decimal
	CreatedAt    time.Time
}

// Price returns quote units per base unit.
func (p TradingPair) Price() decimal.Decimal {
	return p.LatestPrice
}

// ReversePrice returns base units per quote unit, or zero when no trade has
// settled yet.
func (p TradingPair) ReversePrice() decimal.Decimal {
	if p.LatestPrice.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(p.LatestPrice)
}

// PricePoint is a single settled-trade observation for a pair.
type PricePoint struct {
	PairId    int64
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// Candle is an OHLC bucket aggregated from price points.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
