package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/internal/postgres"
	"github.com/runixlabs/runes-indexer/modules/market/datagateway"
	"github.com/runixlabs/runes-indexer/modules/market/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/shopspring/decimal"
)

// Repository implements the pairs data gateway on PostgreSQL.
type Repository struct {
	db postgres.DB
}

var _ datagateway.PairsDataGateway = (*Repository)(nil)

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

const selectPair = `
SELECT id, base_rune_id, quote_asset, latest_price, latest_volume, created_at
FROM market_pairs`

func scanPair(row pgx.Row) (*entity.TradingPair, error) {
	var (
		pair                      entity.TradingPair
		baseRuneId                string
		latestPrice, latestVolume string
	)
	if err := row.Scan(&pair.Id, &baseRuneId, &pair.QuoteAsset, &latestPrice, &latestVolume, &pair.CreatedAt); err != nil {
		return nil, err
	}
	runeId, err := runes.NewRuneIdFromString(baseRuneId)
	if err != nil {
		return nil, errors.Wrap(err, "invalid rune id in row")
	}
	pair.BaseRuneId = runeId
	if pair.LatestPrice, err = decimal.NewFromString(latestPrice); err != nil {
		return nil, errors.Wrap(err, "invalid latest price in row")
	}
	if pair.LatestVolume, err = decimal.NewFromString(latestVolume); err != nil {
		return nil, errors.Wrap(err, "invalid latest volume in row")
	}
	return &pair, nil
}

func (r *Repository) GetPairs(ctx context.Context) ([]*entity.TradingPair, error) {
	rows, err := r.db.Query(ctx, selectPair+` ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "can't query pairs")
	}
	defer rows.Close()

	pairs := make([]*entity.TradingPair, 0)
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan pair")
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading pairs")
	}
	return pairs, nil
}

func (r *Repository) GetPair(ctx context.Context, baseRuneId runes.RuneId, quoteAsset string) (*entity.TradingPair, error) {
	row := r.db.QueryRow(ctx, selectPair+` WHERE base_rune_id = $1 AND quote_asset = $2`, baseRuneId.String(), quoteAsset)
	pair, err := scanPair(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "can't query pair")
	}
	return pair, nil
}

func (r *Repository) CreatePair(ctx context.Context, pair *entity.TradingPair) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO market_pairs (base_rune_id, quote_asset, latest_price, latest_volume, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		pair.BaseRuneId.String(), pair.QuoteAsset, pair.LatestPrice.String(), pair.LatestVolume.String(), pair.CreatedAt,
	).Scan(&pair.Id)
	if err != nil {
		return errors.Wrap(err, "can't insert pair")
	}
	return nil
}

func (r *Repository) UpdatePairLatestTrade(ctx context.Context, pairId int64, price, volume string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE market_pairs SET latest_price = $2, latest_volume = $3 WHERE id = $1`,
		pairId, price, volume,
	)
	if err != nil {
		return errors.Wrap(err, "can't update pair latest trade")
	}
	return nil
}
