package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/runixlabs/runes-indexer/internal/postgres"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
)

// Repository implements the runes data gateways on PostgreSQL.
type Repository struct {
	db postgres.Queryable
	tx pgx.Tx
}

var (
	_ datagateway.RunesDataGateway       = (*Repository)(nil)
	_ datagateway.RunesDataGatewayWithTx = (*Repository)(nil)
	_ datagateway.IndexerInfoDataGateway = (*Repository)(nil)
)

func NewRepository(db postgres.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) BeginRunesTx(ctx context.Context) (datagateway.RunesDataGatewayWithTx, error) {
	db, ok := r.db.(postgres.DB)
	if !ok {
		return nil, errors.New("cannot begin a transaction inside another transaction")
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "can't begin transaction")
	}
	return &Repository{db: tx, tx: tx}, nil
}

func (r *Repository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	if err := r.tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "can't commit transaction")
	}
	return nil
}

func (r *Repository) Rollback(ctx context.Context) error {
	if r.tx == nil {
		return nil
	}
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return errors.Wrap(err, "can't rollback transaction")
	}
	return nil
}
