package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
)

func (r *Repository) GetLatestIndexerState(ctx context.Context) (entity.IndexerState, error) {
	var (
		state   entity.IndexerState
		network string
	)
	err := r.db.QueryRow(ctx,
		`SELECT db_version, network, created_at FROM runes_indexer_state ORDER BY id DESC LIMIT 1`,
	).Scan(&state.DBVersion, &network, &state.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.IndexerState{}, errors.WithStack(errs.NotFound)
		}
		return entity.IndexerState{}, errors.Wrap(err, "can't query indexer state")
	}
	state.Network = common.Network(network)
	return state, nil
}

func (r *Repository) SetIndexerState(ctx context.Context, state entity.IndexerState) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO runes_indexer_state (db_version, network) VALUES ($1, $2)`,
		state.DBVersion, state.Network.String(),
	)
	if err != nil {
		return errors.Wrap(err, "can't insert indexer state")
	}
	return nil
}

func (r *Repository) UpdateIndexerStats(ctx context.Context, stats entity.IndexerStats) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO runes_indexer_stats (id, client_version, network, updated_at) VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE SET client_version = $1, network = $2, updated_at = now()`,
		stats.ClientVersion, stats.Network.String(),
	)
	if err != nil {
		return errors.Wrap(err, "can't update indexer stats")
	}
	return nil
}
