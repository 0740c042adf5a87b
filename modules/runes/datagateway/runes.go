package datagateway

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
)

type RunesDataGateway interface {
	RunesReaderDataGateway
	RunesWriterDataGateway

	// BeginRunesTx returns a gateway whose writes are collected in a
	// database transaction until Commit is called.
	BeginRunesTx(ctx context.Context) (RunesDataGatewayWithTx, error)
}

type RunesDataGatewayWithTx interface {
	RunesReaderDataGateway
	RunesWriterDataGateway
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ListRuneEntriesParams filters and pages GetRuneEntries. Search matches a
// spaced rune name prefix with spacers stripped. AfterRuneId, when non-nil,
// returns entries etched strictly after that id. Height, when non-zero, pins
// the read: only entries etched at or before that block, with their mutable
// state as of that block. Results are ordered by rune id, descending when
// OrderDesc is set.
type ListRuneEntriesParams struct {
	Search      string
	AfterRuneId *runes.RuneId
	Height      uint64
	Limit       int32
	Offset      int32
	OrderDesc   bool
}

type RunesReaderDataGateway interface {
	GetLatestBlock(ctx context.Context) (types.BlockHeader, error)
	GetIndexedBlockByHeight(ctx context.Context, height int64) (*entity.IndexedBlock, error)

	// GetRuneIdFromRune returns errs.NotFound if the rune was never etched.
	GetRuneIdFromRune(ctx context.Context, rune runes.Rune) (runes.RuneId, error)
	// GetRuneEntryByRuneId returns errs.NotFound if the entry does not exist.
	GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error)
	// GetRuneEntryByRuneIdAndHeight returns the entry with its mutable state
	// as of blockHeight. Entries etched above blockHeight are errs.NotFound.
	GetRuneEntryByRuneIdAndHeight(ctx context.Context, runeId runes.RuneId, blockHeight uint64) (*runes.RuneEntry, error)
	GetRuneEntryByRuneIdBatch(ctx context.Context, runeIds []runes.RuneId) (map[runes.RuneId]*runes.RuneEntry, error)
	GetRuneEntries(ctx context.Context, params ListRuneEntriesParams) ([]*runes.RuneEntry, error)
	CountRuneEntries(ctx context.Context, params ListRuneEntriesParams) (int64, error)

	// GetRunesBalancesAtOutPoint returns unspent rune balances held by the
	// given outpoint. The result is empty if the outpoint holds no runes.
	GetRunesBalancesAtOutPoint(ctx context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error)

	GetRuneTransaction(ctx context.Context, hash chainhash.Hash) (*entity.RuneTransaction, error)
}

type RunesWriterDataGateway interface {
	CreateIndexedBlock(ctx context.Context, block *entity.IndexedBlock) error
	CreateRuneEntry(ctx context.Context, entry *runes.RuneEntry, blockHeight uint64) error
	// CreateRuneEntryState appends a new mutable snapshot (mints, burned
	// amount, completion) of an existing entry at the given height.
	CreateRuneEntryState(ctx context.Context, entry *runes.RuneEntry, blockHeight uint64) error
	CreateOutPointBalances(ctx context.Context, balances []*entity.OutPointBalance) error
	SpendOutPointBalances(ctx context.Context, outPoint wire.OutPoint, blockHeight uint64) error
	CreateRuneTransaction(ctx context.Context, tx *entity.RuneTransaction) error

	// Revert helpers delete or restore rows written at or above the given
	// height, in reverse of the write path above.
	DeleteIndexedBlocksSinceHeight(ctx context.Context, height uint64) error
	DeleteRuneEntriesSinceHeight(ctx context.Context, height uint64) error
	DeleteRuneEntryStatesSinceHeight(ctx context.Context, height uint64) error
	DeleteOutPointBalancesSinceHeight(ctx context.Context, height uint64) error
	UnspendOutPointBalancesSinceHeight(ctx context.Context, height uint64) error
	DeleteRuneTransactionsSinceHeight(ctx context.Context, height uint64) error
}
