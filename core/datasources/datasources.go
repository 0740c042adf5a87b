package datasources

import (
	"context"

	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/internal/subscription"
)

// Datasource is a source of indexer input data, addressed by block height.
// Fetch and FetchAsync treat a negative bound as open: from < 0 starts at the
// genesis block, to < 0 follows the chain tip.
type Datasource[T any] interface {
	Name() string
	Fetch(ctx context.Context, from, to int64) ([]T, error)
	FetchAsync(ctx context.Context, from, to int64, ch chan<- []T) (*subscription.ClientSubscription[[]T], error)
	GetBlockHeader(ctx context.Context, height int64) (types.BlockHeader, error)
}
