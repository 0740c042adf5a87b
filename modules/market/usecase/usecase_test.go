package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/market/entity"
	runesdatagateway "github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePairsDg struct {
	pairs  []*entity.TradingPair
	nextId int64
}

func (f *fakePairsDg) GetPairs(ctx context.Context) ([]*entity.TradingPair, error) {
	return f.pairs, nil
}

func (f *fakePairsDg) GetPair(ctx context.Context, baseRuneId runes.RuneId, quoteAsset string) (*entity.TradingPair, error) {
	for _, pair := range f.pairs {
		if pair.BaseRuneId == baseRuneId && pair.QuoteAsset == quoteAsset {
			return pair, nil
		}
	}
	return nil, errors.WithStack(errs.NotFound)
}

func (f *fakePairsDg) CreatePair(ctx context.Context, pair *entity.TradingPair) error {
	f.nextId++
	pair.Id = f.nextId
	f.pairs = append(f.pairs, pair)
	return nil
}

func (f *fakePairsDg) UpdatePairLatestTrade(ctx context.Context, pairId int64, price, volume string) error {
	for _, pair := range f.pairs {
		if pair.Id == pairId {
			pair.LatestPrice = decimal.RequireFromString(price)
			pair.LatestVolume = decimal.RequireFromString(volume)
			return nil
		}
	}
	return errors.WithStack(errs.NotFound)
}

type fakePricesDg struct {
	points  []*entity.PricePoint
	candles []*entity.Candle

	lastQuery struct {
		pairId     int64
		scale      entity.Scale
		start, end time.Time
	}
}

func (f *fakePricesDg) InsertPricePoints(ctx context.Context, points []*entity.PricePoint) error {
	f.points = append(f.points, points...)
	return nil
}

func (f *fakePricesDg) GetCandles(ctx context.Context, pairId int64, scale entity.Scale, start, end time.Time) ([]*entity.Candle, error) {
	f.lastQuery.pairId = pairId
	f.lastQuery.scale = scale
	f.lastQuery.start = start
	f.lastQuery.end = end
	return f.candles, nil
}

type fakeRunesDg struct {
	runesdatagateway.RunesDataGateway

	entries map[runes.RuneId]*runes.RuneEntry
}

func (f *fakeRunesDg) GetRuneIdFromRune(ctx context.Context, r runes.Rune) (runes.RuneId, error) {
	for runeId, entry := range f.entries {
		if entry.SpacedRune.Rune == r {
			return runeId, nil
		}
	}
	return runes.RuneId{}, errors.WithStack(errs.NotFound)
}

func (f *fakeRunesDg) GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	entry, ok := f.entries[runeId]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return entry, nil
}

func newFixture(t *testing.T) (*Usecase, *fakePairsDg, *fakePricesDg, runes.RuneId) {
	t.Helper()
	runeId, err := runes.NewRuneId(840000, 6)
	require.NoError(t, err)
	name, err := runes.NewRuneFromString("FOOBAR")
	require.NoError(t, err)

	runesDg := &fakeRunesDg{entries: map[runes.RuneId]*runes.RuneEntry{
		runeId: {
			RuneId:     runeId,
			SpacedRune: runes.NewSpacedRune(name, 0b100), // FOO•BAR
		},
	}}
	pairsDg := &fakePairsDg{}
	pricesDg := &fakePricesDg{}
	return New(pairsDg, pricesDg, runesDg), pairsDg, pricesDg, runeId
}

func seedPair(t *testing.T, pairsDg *fakePairsDg, runeId runes.RuneId) *entity.TradingPair {
	t.Helper()
	pair := &entity.TradingPair{
		BaseRuneId:   runeId,
		QuoteAsset:   "BTC",
		LatestPrice:  decimal.RequireFromString("0.5"),
		LatestVolume: decimal.RequireFromString("1000"),
		CreatedAt:    time.Unix(1_700_000_000, 0),
	}
	require.NoError(t, pairsDg.CreatePair(context.Background(), pair))
	return pair
}

func TestGetPair(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, _, runeId := newFixture(t)
	seedPair(t, pairsDg, runeId)

	for _, query := range []string{"840000:6-BTC", "FOOBAR-BTC", "FOO•BAR-btc", "foobar-btc"} {
		info, err := u.GetPair(ctx, query)
		require.NoError(t, err, "query %q", query)
		assert.Equal(t, runeId, info.Pair.BaseRuneId)
		assert.Equal(t, "BTC", info.Pair.QuoteAsset)
		assert.Equal(t, "FOO•BAR", info.BaseEntry.SpacedRune.String())
	}
}

func TestGetPairNotFound(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, _, runeId := newFixture(t)
	seedPair(t, pairsDg, runeId)

	_, err := u.GetPair(ctx, "FOOBAR-USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestGetPairInvalidQuery(t *testing.T) {
	ctx := context.Background()
	u, _, _, _ := newFixture(t)

	for _, query := range []string{"", "FOOBAR", "-BTC", "FOOBAR-", "123-BTC"} {
		_, err := u.GetPair(ctx, query)
		require.Error(t, err, "query %q", query)
	}
}

func TestGetPriceHistory(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, pricesDg, runeId := newFixture(t)
	pair := seedPair(t, pairsDg, runeId)
	pricesDg.candles = []*entity.Candle{
		{
			Timestamp: time.Unix(1_700_000_000, 0),
			Open:      decimal.RequireFromString("0.4"),
			High:      decimal.RequireFromString("0.6"),
			Low:       decimal.RequireFromString("0.3"),
			Close:     decimal.RequireFromString("0.5"),
			Volume:    decimal.RequireFromString("1000"),
		},
	}

	start := time.Unix(1_699_990_000, 0)
	end := time.Unix(1_700_010_000, 0)
	candles, err := u.GetPriceHistory(ctx, "FOOBAR-BTC", entity.ScaleHour, start, end)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, pair.Id, pricesDg.lastQuery.pairId)
	assert.Equal(t, entity.ScaleHour, pricesDg.lastQuery.scale)
	assert.Equal(t, start, pricesDg.lastQuery.start)
	assert.Equal(t, end, pricesDg.lastQuery.end)
}

func TestGetPriceHistoryDefaultRange(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, pricesDg, runeId := newFixture(t)
	seedPair(t, pairsDg, runeId)

	_, err := u.GetPriceHistory(ctx, "FOOBAR-BTC", entity.ScaleMinute, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 100*time.Minute, pricesDg.lastQuery.end.Sub(pricesDg.lastQuery.start))
}

func TestGetPriceHistoryInvalidRange(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, _, runeId := newFixture(t)
	seedPair(t, pairsDg, runeId)

	end := time.Unix(1_700_000_000, 0)
	_, err := u.GetPriceHistory(ctx, "FOOBAR-BTC", entity.ScaleHour, end.Add(time.Hour), end)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.InvalidArgument)
}

func TestRecordTrade(t *testing.T) {
	ctx := context.Background()
	u, pairsDg, pricesDg, runeId := newFixture(t)

	timestamp := time.Unix(1_700_000_000, 0)
	err := u.RecordTrade(ctx, runeId, "btc", decimal.RequireFromString("0.25"), decimal.RequireFromString("400"), timestamp)
	require.NoError(t, err)

	require.Len(t, pairsDg.pairs, 1)
	pair := pairsDg.pairs[0]
	assert.Equal(t, "BTC", pair.QuoteAsset)
	assert.Equal(t, "0.25", pair.LatestPrice.String())
	assert.Equal(t, "400", pair.LatestVolume.String())
	require.Len(t, pricesDg.points, 1)
	assert.Equal(t, pair.Id, pricesDg.points[0].PairId)
	assert.Equal(t, timestamp, pricesDg.points[0].Timestamp)

	// a second trade reuses the existing pair
	err = u.RecordTrade(ctx, runeId, "BTC", decimal.RequireFromString("0.3"), decimal.RequireFromString("100"), timestamp.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pairsDg.pairs, 1)
	assert.Equal(t, "0.3", pairsDg.pairs[0].LatestPrice.String())
	require.Len(t, pricesDg.points, 2)
}
