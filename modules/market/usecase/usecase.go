package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/market/datagateway"
	"github.com/runixlabs/runes-indexer/modules/market/entity"
	runesdatagateway "github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/shopspring/decimal"
)

const defaultHistoryBuckets = 100

type Usecase struct {
	pairsDg  datagateway.PairsDataGateway
	pricesDg datagateway.PriceTimeseriesDataGateway
	runesDg  runesdatagateway.RunesDataGateway
}

func New(pairsDg datagateway.PairsDataGateway, pricesDg datagateway.PriceTimeseriesDataGateway, runesDg runesdatagateway.RunesDataGateway) *Usecase {
	return &Usecase{
		pairsDg:  pairsDg,
		pricesDg: pricesDg,
		runesDg:  runesDg,
	}
}

// PairInfo is a trading pair joined with the rune entry of its base asset.
type PairInfo struct {
	Pair      *entity.TradingPair
	BaseEntry *runes.RuneEntry
}

func (u *Usecase) ListPairs(ctx context.Context) ([]*PairInfo, error) {
	pairs, err := u.pairsDg.GetPairs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pairs")
	}

	infos := make([]*PairInfo, 0, len(pairs))
	for _, pair := range pairs {
		entry, err := u.runesDg.GetRuneEntryByRuneId(ctx, pair.BaseRuneId)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get rune entry for pair %d", pair.Id)
		}
		infos = append(infos, &PairInfo{Pair: pair, BaseEntry: entry})
	}
	return infos, nil
}

func (u *Usecase) GetPair(ctx context.Context, query string) (*PairInfo, error) {
	baseRuneId, quoteAsset, err := u.resolvePairQuery(ctx, query)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pair, err := u.pairsDg.GetPair(ctx, baseRuneId, quoteAsset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pair")
	}
	entry, err := u.runesDg.GetRuneEntryByRuneId(ctx, pair.BaseRuneId)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rune entry for pair")
	}
	return &PairInfo{Pair: pair, BaseEntry: entry}, nil
}

func (u *Usecase) GetPriceHistory(ctx context.Context, query string, scale entity.Scale, start, end time.Time) ([]*entity.Candle, error) {
	info, err := u.GetPair(ctx, query)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.Add(-defaultHistoryBuckets * scale.Duration())
	}
	if end.Before(start) {
		return nil, errs.WithPublicMessage(errors.Wrap(errs.InvalidArgument, "end before start"), "invalid time range")
	}

	candles, err := u.pricesDg.GetCandles(ctx, info.Pair.Id, scale, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get candles")
	}
	return candles, nil
}

// RecordTrade upserts the trading pair and appends a settled trade to the
// price timeseries.
func (u *Usecase) RecordTrade(ctx context.Context, baseRuneId runes.RuneId, quoteAsset string, price, volume decimal.Decimal, timestamp time.Time) error {
	quoteAsset = strings.ToUpper(quoteAsset)
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	pair, err := u.pairsDg.GetPair(ctx, baseRuneId, quoteAsset)
	if err != nil {
		if !errors.Is(err, errs.NotFound) {
			return errors.Wrap(err, "failed to get pair")
		}
		pair = &entity.TradingPair{
			BaseRuneId: baseRuneId,
			QuoteAsset: quoteAsset,
			CreatedAt:  timestamp,
		}
		if err := u.pairsDg.CreatePair(ctx, pair); err != nil {
			return errors.Wrap(err, "failed to create pair")
		}
	}

	if err := u.pricesDg.InsertPricePoints(ctx, []*entity.PricePoint{{
		PairId:    pair.Id,
		Price:     price,
		Volume:    volume,
		Timestamp: timestamp,
	}}); err != nil {
		return errors.Wrap(err, "failed to insert price point")
	}
	if err := u.pairsDg.UpdatePairLatestTrade(ctx, pair.Id, price.String(), volume.String()); err != nil {
		return errors.Wrap(err, "failed to update pair latest trade")
	}
	return nil
}

// resolvePairQuery parses a "BASE-QUOTE" pair identifier. BASE may be a rune
// id ("840000:6") or a rune name with optional spacers.
func (u *Usecase) resolvePairQuery(ctx context.Context, query string) (runes.RuneId, string, error) {
	sep := strings.LastIndex(query, "-")
	if sep <= 0 || sep == len(query)-1 {
		return runes.RuneId{}, "", errs.WithPublicMessage(errors.Wrapf(errs.InvalidArgument, "invalid pair %q", query), "pair must be in BASE-QUOTE form")
	}
	base, quote := query[:sep], strings.ToUpper(query[sep+1:])

	if runeId, err := runes.NewRuneIdFromString(base); err == nil {
		return runeId, quote, nil
	}
	spacedRune, err := runes.NewSpacedRuneFromString(strings.ToUpper(base))
	if err != nil {
		return runes.RuneId{}, "", errs.WithPublicMessage(errors.Wrapf(errs.InvalidArgument, "invalid base asset %q", base), "invalid base asset")
	}
	runeId, err := u.runesDg.GetRuneIdFromRune(ctx, spacedRune.Rune)
	if err != nil {
		return runes.RuneId{}, "", errors.Wrap(err, "failed to resolve base asset")
	}
	return runeId, quote, nil
}
