package runes

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/indexer"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/samber/lo"
)

// BitcoinClient is the subset of the bitcoin datasource the ledger needs to
// verify etching commitments.
type BitcoinClient interface {
	GetTransaction(ctx context.Context, txHash chainhash.Hash) (*types.Transaction, error)
}

type Processor struct {
	runesDg       datagateway.RunesDataGateway
	indexerInfoDg datagateway.IndexerInfoDataGateway
	bitcoinClient BitcoinClient
	network       common.Network
	cleanupFuncs  []func(context.Context) error
}

var _ indexer.Processor[*types.Block] = (*Processor)(nil)

func NewProcessor(runesDg datagateway.RunesDataGateway, indexerInfoDg datagateway.IndexerInfoDataGateway, bitcoinClient BitcoinClient, network common.Network, cleanupFuncs ...func(context.Context) error) *Processor {
	return &Processor{
		runesDg:       runesDg,
		indexerInfoDg: indexerInfoDg,
		bitcoinClient: bitcoinClient,
		network:       network,
		cleanupFuncs:  cleanupFuncs,
	}
}

func (p *Processor) Name() string {
	return "runes"
}

// VerifyStates checks database compatibility and seeds protocol state. It
// must be called once before the indexer starts.
func (p *Processor) VerifyStates(ctx context.Context) error {
	if err := p.ensureValidState(ctx); err != nil {
		return errors.Wrap(err, "invalid indexer state")
	}
	if err := p.ensureGenesisRune(ctx); err != nil {
		return errors.Wrap(err, "can't ensure genesis rune")
	}
	if err := p.indexerInfoDg.UpdateIndexerStats(ctx, entity.IndexerStats{
		ClientVersion: Version,
		Network:       p.network,
	}); err != nil {
		return errors.Wrap(err, "can't update indexer stats")
	}
	return nil
}

func (p *Processor) ensureValidState(ctx context.Context) error {
	state, err := p.indexerInfoDg.GetLatestIndexerState(ctx)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "can't get latest indexer state")
	}

	if errors.Is(err, errs.NotFound) {
		if err := p.indexerInfoDg.SetIndexerState(ctx, entity.IndexerState{
			DBVersion: DBVersion,
			Network:   p.network,
		}); err != nil {
			return errors.Wrap(err, "can't set indexer state")
		}
		return nil
	}

	if state.DBVersion != DBVersion {
		return errors.Wrapf(errs.ConflictSetting, "db version mismatch: expected %d, got %d. Please migrate the database", DBVersion, state.DBVersion)
	}
	if state.Network != p.network {
		return errors.Wrapf(errs.ConflictSetting, "network mismatch: database was indexed with network %q, configured network is %q", state.Network, p.network)
	}
	return nil
}

var genesisRuneId = runes.RuneId{BlockHeight: 1, TxIndex: 0}

// ensureGenesisRune etches UNCOMMON•GOODS, the hardcoded rune that predates
// the protocol activation height on mainnet.
func (p *Processor) ensureGenesisRune(ctx context.Context) error {
	if p.network != common.NetworkMainnet {
		return nil
	}
	_, err := p.runesDg.GetRuneEntryByRuneId(ctx, genesisRuneId)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "can't get genesis rune entry")
	}

	entry := &runes.RuneEntry{
		RuneId: genesisRuneId,
		SpacedRune: runes.SpacedRune{
			Rune:    runes.NewRune(2055900680524219742),
			Spacers: 0b10000000,
		},
		Symbol: '⧉',
		Terms: &runes.Terms{
			Amount:      lo.ToPtr(uint128.From64(1)),
			Cap:         lo.ToPtr(uint128.Max),
			HeightStart: lo.ToPtr(uint64(common.HalvingInterval * 4)),
			HeightEnd:   lo.ToPtr(uint64(common.HalvingInterval * 5)),
		},
		Turbo:        true,
		EtchingBlock: genesisRuneId.BlockHeight,
	}
	if err := p.runesDg.CreateRuneEntry(ctx, entry, genesisRuneId.BlockHeight); err != nil {
		return errors.Wrap(err, "can't create genesis rune entry")
	}
	return nil
}

func (p *Processor) CurrentBlock(ctx context.Context) (types.BlockHeader, error) {
	header, err := p.runesDg.GetLatestBlock(ctx)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return startingBlockHeader[p.network], nil
		}
		return types.BlockHeader{}, errors.Wrap(err, "can't get latest indexed block")
	}
	return header, nil
}

func (p *Processor) GetIndexedBlock(ctx context.Context, height int64) (types.BlockHeader, error) {
	block, err := p.runesDg.GetIndexedBlockByHeight(ctx, height)
	if err != nil {
		return types.BlockHeader{}, errors.Wrapf(err, "can't get indexed block at height %d", height)
	}
	return types.BlockHeader{
		Height:    block.Height,
		Hash:      block.Hash,
		PrevBlock: block.PrevHash,
		Timestamp: block.Timestamp,
	}, nil
}

// RevertData deletes all ledger state produced by blocks at heights >= from.
func (p *Processor) RevertData(ctx context.Context, from int64) error {
	dgTx, err := p.runesDg.BeginRunesTx(ctx)
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	defer func() {
		_ = dgTx.Rollback(ctx)
	}()

	sinceHeight := uint64(max(from, 0))
	revert := []func(context.Context, uint64) error{
		dgTx.DeleteIndexedBlocksSinceHeight,
		dgTx.DeleteRuneEntriesSinceHeight,
		dgTx.DeleteRuneEntryStatesSinceHeight,
		dgTx.DeleteRuneTransactionsSinceHeight,
		dgTx.DeleteOutPointBalancesSinceHeight,
		dgTx.UnspendOutPointBalancesSinceHeight,
	}
	for _, fn := range revert {
		if err := fn(ctx, sinceHeight); err != nil {
			return errors.Wrap(err, "can't revert data")
		}
	}

	if err := dgTx.Commit(ctx); err != nil {
		return errors.Wrap(err, "can't commit revert transaction")
	}
	return nil
}

func (p *Processor) Shutdown(ctx context.Context) error {
	for _, cleanup := range p.cleanupFuncs {
		if err := cleanup(ctx); err != nil {
			return errors.Wrap(err, "error during cleanup")
		}
	}
	return nil
}
