package datagateway

import (
	"context"

	"github.com/runixlabs/runes-indexer/modules/runes/entity"
)

type IndexerInfoDataGateway interface {
	// GetLatestIndexerState returns errs.NotFound on a fresh database.
	GetLatestIndexerState(ctx context.Context) (entity.IndexerState, error)
	SetIndexerState(ctx context.Context, state entity.IndexerState) error
	UpdateIndexerStats(ctx context.Context, stats entity.IndexerStats) error
}
