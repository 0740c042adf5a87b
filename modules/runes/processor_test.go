package runes

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryStateRow struct {
	runeId            runes.RuneId
	height            uint64
	mints             uint128.Uint128
	burnedAmount      uint128.Uint128
	completedAt       time.Time
	completedAtHeight *uint64
}

// memRunesDg is an in-memory RunesDataGateway used to exercise the ledger
// without a database.
type memRunesDg struct {
	blocks         []*entity.IndexedBlock
	entries        map[runes.RuneId]*runes.RuneEntry
	entryCreatedAt map[runes.RuneId]uint64
	states         []*entryStateRow
	balances       []*entity.OutPointBalance
	runeTxs        []*entity.RuneTransaction
}

var _ datagateway.RunesDataGateway = (*memRunesDg)(nil)

func newMemRunesDg() *memRunesDg {
	return &memRunesDg{
		entries:        make(map[runes.RuneId]*runes.RuneEntry),
		entryCreatedAt: make(map[runes.RuneId]uint64),
	}
}

type memRunesDgTx struct {
	*memRunesDg
}

func (d *memRunesDg) BeginRunesTx(_ context.Context) (datagateway.RunesDataGatewayWithTx, error) {
	return &memRunesDgTx{d}, nil
}

func (t *memRunesDgTx) Commit(_ context.Context) error   { return nil }
func (t *memRunesDgTx) Rollback(_ context.Context) error { return nil }

func (d *memRunesDg) GetLatestBlock(_ context.Context) (types.BlockHeader, error) {
	if len(d.blocks) == 0 {
		return types.BlockHeader{}, errors.WithStack(errs.NotFound)
	}
	latest := d.blocks[0]
	for _, block := range d.blocks[1:] {
		if block.Height > latest.Height {
			latest = block
		}
	}
	return types.BlockHeader{
		Height:    latest.Height,
		Hash:      latest.Hash,
		PrevBlock: latest.PrevHash,
		Timestamp: latest.Timestamp,
	}, nil
}

func (d *memRunesDg) GetIndexedBlockByHeight(_ context.Context, height int64) (*entity.IndexedBlock, error) {
	for _, block := range d.blocks {
		if block.Height == height {
			return block, nil
		}
	}
	return nil, errors.WithStack(errs.NotFound)
}

func (d *memRunesDg) GetRuneIdFromRune(_ context.Context, rune runes.Rune) (runes.RuneId, error) {
	for runeId, entry := range d.entries {
		if entry.SpacedRune.Rune == rune {
			return runeId, nil
		}
	}
	return runes.RuneId{}, errors.WithStack(errs.NotFound)
}

func (d *memRunesDg) GetRuneEntryByRuneId(_ context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	base, ok := d.entries[runeId]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	entry := *base
	var latest *entryStateRow
	for _, state := range d.states {
		if state.runeId == runeId {
			latest = state
		}
	}
	if latest != nil {
		entry.Mints = latest.mints
		entry.BurnedAmount = latest.burnedAmount
		entry.CompletedAt = latest.completedAt
		entry.CompletedAtHeight = latest.completedAtHeight
	}
	return &entry, nil
}

func (d *memRunesDg) GetRuneEntryByRuneIdAndHeight(_ context.Context, runeId runes.RuneId, blockHeight uint64) (*runes.RuneEntry, error) {
	base, ok := d.entries[runeId]
	if !ok || base.EtchingBlock > blockHeight {
		return nil, errors.WithStack(errs.NotFound)
	}
	entry := *base
	var latest *entryStateRow
	for _, state := range d.states {
		if state.runeId == runeId && state.height <= blockHeight {
			latest = state
		}
	}
	if latest != nil {
		entry.Mints = latest.mints
		entry.BurnedAmount = latest.burnedAmount
		entry.CompletedAt = latest.completedAt
		entry.CompletedAtHeight = latest.completedAtHeight
	}
	return &entry, nil
}

func (d *memRunesDg) GetRuneEntryByRuneIdBatch(ctx context.Context, runeIds []runes.RuneId) (map[runes.RuneId]*runes.RuneEntry, error) {
	result := make(map[runes.RuneId]*runes.RuneEntry)
	for _, runeId := range runeIds {
		entry, err := d.GetRuneEntryByRuneId(ctx, runeId)
		if err != nil {
			if errors.Is(err, errs.NotFound) {
				continue
			}
			return nil, err
		}
		result[runeId] = entry
	}
	return result, nil
}

func (d *memRunesDg) listEntries(ctx context.Context, params datagateway.ListRuneEntriesParams) []*runes.RuneEntry {
	entries := make([]*runes.RuneEntry, 0, len(d.entries))
	for runeId := range d.entries {
		entry := utils.Must(d.GetRuneEntryByRuneId(ctx, runeId))
		if params.Search != "" && !strings.HasPrefix(entry.SpacedRune.Rune.String(), strings.ToUpper(params.Search)) {
			continue
		}
		if params.AfterRuneId != nil {
			after := *params.AfterRuneId
			if entry.RuneId.BlockHeight < after.BlockHeight ||
				(entry.RuneId.BlockHeight == after.BlockHeight && entry.RuneId.TxIndex <= after.TxIndex) {
				continue
			}
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		less := entries[i].RuneId.BlockHeight < entries[j].RuneId.BlockHeight ||
			(entries[i].RuneId.BlockHeight == entries[j].RuneId.BlockHeight &&
				entries[i].RuneId.TxIndex < entries[j].RuneId.TxIndex)
		if params.OrderDesc {
			return !less
		}
		return less
	})
	return entries
}

func (d *memRunesDg) GetRuneEntries(ctx context.Context, params datagateway.ListRuneEntriesParams) ([]*runes.RuneEntry, error) {
	entries := d.listEntries(ctx, params)
	if params.Offset > 0 {
		if int(params.Offset) >= len(entries) {
			return nil, nil
		}
		entries = entries[params.Offset:]
	}
	if params.Limit > 0 && int(params.Limit) < len(entries) {
		entries = entries[:params.Limit]
	}
	return entries, nil
}

func (d *memRunesDg) CountRuneEntries(ctx context.Context, params datagateway.ListRuneEntriesParams) (int64, error) {
	return int64(len(d.listEntries(ctx, params))), nil
}

func (d *memRunesDg) GetRunesBalancesAtOutPoint(_ context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error) {
	result := make(map[runes.RuneId]uint128.Uint128)
	for _, balance := range d.balances {
		if balance.OutPoint == outPoint && balance.SpentHeight == nil {
			result[balance.RuneId] = result[balance.RuneId].Add(balance.Amount)
		}
	}
	return result, nil
}

func (d *memRunesDg) GetRuneTransaction(_ context.Context, hash chainhash.Hash) (*entity.RuneTransaction, error) {
	for _, runeTx := range d.runeTxs {
		if runeTx.Hash == hash {
			return runeTx, nil
		}
	}
	return nil, errors.WithStack(errs.NotFound)
}

func (d *memRunesDg) CreateIndexedBlock(_ context.Context, block *entity.IndexedBlock) error {
	// height is the primary key of runes_indexed_blocks
	for _, existing := range d.blocks {
		if existing.Height == block.Height {
			return errors.Errorf("duplicate key value violates unique constraint: indexed block at height %d already exists", block.Height)
		}
	}
	d.blocks = append(d.blocks, block)
	return nil
}

func (d *memRunesDg) CreateRuneEntry(_ context.Context, entry *runes.RuneEntry, blockHeight uint64) error {
	clone := *entry
	d.entries[entry.RuneId] = &clone
	d.entryCreatedAt[entry.RuneId] = blockHeight
	return nil
}

func (d *memRunesDg) CreateRuneEntryState(_ context.Context, entry *runes.RuneEntry, blockHeight uint64) error {
	d.states = append(d.states, &entryStateRow{
		runeId:            entry.RuneId,
		height:            blockHeight,
		mints:             entry.Mints,
		burnedAmount:      entry.BurnedAmount,
		completedAt:       entry.CompletedAt,
		completedAtHeight: entry.CompletedAtHeight,
	})
	return nil
}

func (d *memRunesDg) CreateOutPointBalances(_ context.Context, balances []*entity.OutPointBalance) error {
	d.balances = append(d.balances, balances...)
	return nil
}

func (d *memRunesDg) SpendOutPointBalances(_ context.Context, outPoint wire.OutPoint, blockHeight uint64) error {
	for _, balance := range d.balances {
		if balance.OutPoint == outPoint && balance.SpentHeight == nil {
			height := blockHeight
			balance.SpentHeight = &height
		}
	}
	return nil
}

func (d *memRunesDg) CreateRuneTransaction(_ context.Context, tx *entity.RuneTransaction) error {
	d.runeTxs = append(d.runeTxs, tx)
	return nil
}

func (d *memRunesDg) DeleteIndexedBlocksSinceHeight(_ context.Context, height uint64) error {
	d.blocks = lo.Filter(d.blocks, func(block *entity.IndexedBlock, _ int) bool {
		return block.Height < int64(height)
	})
	return nil
}

func (d *memRunesDg) DeleteRuneEntriesSinceHeight(_ context.Context, height uint64) error {
	for runeId, createdAt := range d.entryCreatedAt {
		if createdAt >= height {
			delete(d.entries, runeId)
			delete(d.entryCreatedAt, runeId)
		}
	}
	return nil
}

func (d *memRunesDg) DeleteRuneEntryStatesSinceHeight(_ context.Context, height uint64) error {
	d.states = lo.Filter(d.states, func(state *entryStateRow, _ int) bool {
		return state.height < height
	})
	return nil
}

func (d *memRunesDg) DeleteOutPointBalancesSinceHeight(_ context.Context, height uint64) error {
	d.balances = lo.Filter(d.balances, func(balance *entity.OutPointBalance, _ int) bool {
		return balance.BlockHeight < height
	})
	return nil
}

func (d *memRunesDg) UnspendOutPointBalancesSinceHeight(_ context.Context, height uint64) error {
	for _, balance := range d.balances {
		if balance.SpentHeight != nil && *balance.SpentHeight >= height {
			balance.SpentHeight = nil
		}
	}
	return nil
}

func (d *memRunesDg) DeleteRuneTransactionsSinceHeight(_ context.Context, height uint64) error {
	d.runeTxs = lo.Filter(d.runeTxs, func(runeTx *entity.RuneTransaction, _ int) bool {
		return runeTx.BlockHeight < height
	})
	return nil
}

type memIndexerInfoDg struct {
	state *entity.IndexerState
	stats *entity.IndexerStats
}

var _ datagateway.IndexerInfoDataGateway = (*memIndexerInfoDg)(nil)

func (d *memIndexerInfoDg) GetLatestIndexerState(_ context.Context) (entity.IndexerState, error) {
	if d.state == nil {
		return entity.IndexerState{}, errors.WithStack(errs.NotFound)
	}
	return *d.state, nil
}

func (d *memIndexerInfoDg) SetIndexerState(_ context.Context, state entity.IndexerState) error {
	d.state = &state
	return nil
}

func (d *memIndexerInfoDg) UpdateIndexerStats(_ context.Context, stats entity.IndexerStats) error {
	d.stats = &stats
	return nil
}

type stubBitcoinClient struct {
	txs map[chainhash.Hash]*types.Transaction
}

func (s *stubBitcoinClient) GetTransaction(_ context.Context, txHash chainhash.Hash) (*types.Transaction, error) {
	tx, ok := s.txs[txHash]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return tx, nil
}

func newTestProcessor() (*Processor, *memRunesDg, *stubBitcoinClient) {
	dg := newMemRunesDg()
	client := &stubBitcoinClient{txs: make(map[chainhash.Hash]*types.Transaction)}
	processor := NewProcessor(dg, &memIndexerInfoDg{}, client, common.NetworkMainnet)
	return processor, dg, client
}

func hashFromByte(b byte) chainhash.Hash {
	var hash chainhash.Hash
	hash[0] = b
	return hash
}

func p2trPkScript(b byte) []byte {
	pkScript := make([]byte, 34)
	pkScript[0] = txscript.OP_1
	pkScript[1] = 0x20
	pkScript[2] = b
	return pkScript
}

func opReturnOutput(pkScript []byte) *types.TxOut {
	return &types.TxOut{PkScript: pkScript}
}

func blockAt(height int64, txs ...*types.Transaction) *types.Block {
	return &types.Block{
		Header: types.BlockHeader{
			Height:    height,
			Hash:      hashFromByte(byte(height % 251)),
			Timestamp: time.Unix(1713571767+height, 0),
		},
		Transactions: txs,
	}
}

// etchingSetup returns a transaction etching the given rune with a valid
// commitment, registering the commitment transaction in the stub client.
func etchingSetup(t *testing.T, client *stubBitcoinClient, runestone runes.Runestone, name runes.Rune, height int64) *types.Transaction {
	t.Helper()

	commitTxHash := hashFromByte(0xc0)
	client.txs[commitTxHash] = &types.Transaction{
		TxHash:      commitTxHash,
		BlockHeight: height - int64(runes.RUNE_COMMIT_BLOCKS) + 1,
		TxOut:       []*types.TxOut{{PkScript: p2trPkScript(0xaa), Value: 10_000}},
	}

	tapscript, err := txscript.NewScriptBuilder().AddData(name.Commitment()).Script()
	require.NoError(t, err)
	pkScript, err := runestone.Encipher()
	require.NoError(t, err)

	return &types.Transaction{
		BlockHeight: height,
		Index:       1,
		TxHash:      hashFromByte(0xe0),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: commitTxHash,
			PreviousOutIndex:  0,
			Witness:           [][]byte{tapscript, {0xc1}},
		}},
		TxOut: []*types.TxOut{
			opReturnOutput(pkScript),
			{PkScript: p2trPkScript(0xbb), Value: 546},
		},
	}
}

func TestProcessEtching(t *testing.T) {
	ctx := context.Background()
	processor, dg, client := newTestProcessor()

	name := utils.Must(runes.NewRuneFromString("ZZZZZZZZZZZZ"))
	runestone := runes.Runestone{
		Etching: &runes.Etching{
			Rune:         &name,
			Divisibility: lo.ToPtr(uint8(2)),
			Premine:      lo.ToPtr(uint128.From64(1000)),
			Spacers:      lo.ToPtr(uint32(0b10)),
			Symbol:       lo.ToPtr('$'),
			Terms: &runes.Terms{
				Amount: lo.ToPtr(uint128.From64(100)),
				Cap:    lo.ToPtr(uint128.From64(5)),
			},
		},
	}
	tx := etchingSetup(t, client, runestone, name, 840000)

	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, tx)}))

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	entry, err := dg.GetRuneEntryByRuneId(ctx, runeId)
	require.NoError(t, err)
	assert.Equal(t, name, entry.SpacedRune.Rune)
	assert.Equal(t, uint32(0b10), entry.SpacedRune.Spacers)
	assert.Equal(t, uint8(2), entry.Divisibility)
	assert.Equal(t, '$', entry.Symbol)
	assert.Equal(t, uint128.From64(1000), entry.Premine)
	require.NotNil(t, entry.CommitmentTxHash)
	assert.Equal(t, hashFromByte(0xc0), *entry.CommitmentTxHash)
	assert.Equal(t, tx.TxHash, entry.EtchingTxHash)

	// premine goes to the first non-OP_RETURN output
	balances, err := dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1000), balances[runeId])

	runeTx, err := dg.GetRuneTransaction(ctx, tx.TxHash)
	require.NoError(t, err)
	assert.True(t, runeTx.RuneEtched)

	_, err = dg.GetIndexedBlockByHeight(ctx, 840000)
	require.NoError(t, err)
}

func TestProcessBlockTwice(t *testing.T) {
	ctx := context.Background()
	processor, dg, client := newTestProcessor()

	name := utils.Must(runes.NewRuneFromString("ZZZZZZZZZZZZ"))
	runestone := runes.Runestone{
		Etching: &runes.Etching{
			Rune:    &name,
			Premine: lo.ToPtr(uint128.From64(1000)),
		},
	}
	tx := etchingSetup(t, client, runestone, name, 840000)
	block := blockAt(840000, tx)

	require.NoError(t, processor.Process(ctx, []*types.Block{block}))

	// replaying an already indexed block hits the height primary key
	err := processor.Process(ctx, []*types.Block{block})
	require.Error(t, err)

	assert.Len(t, dg.blocks, 1)
	assert.Len(t, dg.entries, 1)
	assert.Len(t, dg.states, 1)

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	entry, err := dg.GetRuneEntryByRuneId(ctx, runeId)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1000), entry.Premine)
	assert.True(t, entry.Mints.IsZero())
}

func TestProcessEtchingVoid(t *testing.T) {
	ctx := context.Background()

	t.Run("no commitment", func(t *testing.T) {
		processor, dg, _ := newTestProcessor()
		name := utils.Must(runes.NewRuneFromString("ZZZZZZZZZZZZ"))
		pkScript := utils.Must(runes.Runestone{
			Etching: &runes.Etching{Rune: &name, Premine: lo.ToPtr(uint128.From64(1000))},
		}.Encipher())
		tx := &types.Transaction{
			BlockHeight: 840000,
			Index:       1,
			TxHash:      hashFromByte(0xe1),
			TxIn:        []*types.TxIn{{PreviousOutTxHash: hashFromByte(0x11)}},
			TxOut:       []*types.TxOut{opReturnOutput(pkScript), {PkScript: p2trPkScript(0xbb)}},
		}
		require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, tx)}))

		_, err := dg.GetRuneIdFromRune(ctx, name)
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("name below minimum", func(t *testing.T) {
		processor, dg, client := newTestProcessor()
		name := utils.Must(runes.NewRuneFromString("AAAA"))
		runestone := runes.Runestone{Etching: &runes.Etching{Rune: &name}}
		tx := etchingSetup(t, client, runestone, name, 840000)
		require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, tx)}))

		_, err := dg.GetRuneIdFromRune(ctx, name)
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("reserved name", func(t *testing.T) {
		processor, dg, client := newTestProcessor()
		name := runes.GetReservedRune(840000, 0)
		runestone := runes.Runestone{Etching: &runes.Etching{Rune: &name}}
		tx := etchingSetup(t, client, runestone, name, 840000)
		require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, tx)}))

		_, err := dg.GetRuneIdFromRune(ctx, name)
		assert.ErrorIs(t, err, errs.NotFound)
	})
}

func TestProcessEtchingReserved(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	// etching without a name gets a reserved rune allocated
	pkScript := utils.Must(runes.Runestone{
		Etching: &runes.Etching{Premine: lo.ToPtr(uint128.From64(50))},
	}.Encipher())
	tx := &types.Transaction{
		BlockHeight: 840000,
		Index:       3,
		TxHash:      hashFromByte(0xe2),
		TxIn:        []*types.TxIn{{PreviousOutTxHash: hashFromByte(0x11)}},
		TxOut:       []*types.TxOut{opReturnOutput(pkScript), {PkScript: p2trPkScript(0xbb)}},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, tx)}))

	runeId := utils.Must(runes.NewRuneId(840000, 3))
	entry, err := dg.GetRuneEntryByRuneId(ctx, runeId)
	require.NoError(t, err)
	assert.Equal(t, runes.GetReservedRune(840000, 3), entry.SpacedRune.Rune)
	assert.True(t, entry.SpacedRune.Rune.IsReserved())
}

func seedEntry(t *testing.T, dg *memRunesDg, runeId runes.RuneId, terms *runes.Terms) {
	t.Helper()
	name := runes.GetReservedRune(runeId.BlockHeight, runeId.TxIndex)
	require.NoError(t, dg.CreateRuneEntry(context.Background(), &runes.RuneEntry{
		RuneId:       runeId,
		SpacedRune:   runes.NewSpacedRune(name, 0),
		Terms:        terms,
		EtchingBlock: runeId.BlockHeight,
	}, runeId.BlockHeight))
}

func seedBalance(t *testing.T, dg *memRunesDg, outPoint wire.OutPoint, runeId runes.RuneId, amount uint64, height uint64) {
	t.Helper()
	require.NoError(t, dg.CreateOutPointBalances(context.Background(), []*entity.OutPointBalance{{
		RuneId:      runeId,
		OutPoint:    outPoint,
		Amount:      uint128.From64(amount),
		BlockHeight: height,
	}}))
}

func mintTx(t *testing.T, runeId runes.RuneId, txHash chainhash.Hash) *types.Transaction {
	t.Helper()
	pkScript := utils.Must(runes.Runestone{Mint: &runeId}.Encipher())
	return &types.Transaction{
		Index:  1,
		TxHash: txHash,
		TxIn:   []*types.TxIn{{PreviousOutTxHash: hashFromByte(0x11)}},
		TxOut:  []*types.TxOut{opReturnOutput(pkScript), {PkScript: p2trPkScript(0xbb)}},
	}
}

func TestProcessMint(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	seedEntry(t, dg, runeId, &runes.Terms{
		Amount: lo.ToPtr(uint128.From64(100)),
		Cap:    lo.ToPtr(uint128.From64(2)),
	})

	tx1 := mintTx(t, runeId, hashFromByte(0xf1))
	tx1.BlockHeight = 840001
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840001, tx1)}))

	entry := utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	assert.Equal(t, uint128.From64(1), entry.Mints)
	assert.Nil(t, entry.CompletedAtHeight)

	balances := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx1.TxHash, Index: 1}))
	assert.Equal(t, uint128.From64(100), balances[runeId])

	// second mint reaches the cap
	tx2 := mintTx(t, runeId, hashFromByte(0xf2))
	tx2.BlockHeight = 840002
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840002, tx2)}))

	entry = utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	assert.Equal(t, uint128.From64(2), entry.Mints)
	require.NotNil(t, entry.CompletedAtHeight)
	assert.Equal(t, uint64(840002), *entry.CompletedAtHeight)

	// third mint is void
	tx3 := mintTx(t, runeId, hashFromByte(0xf3))
	tx3.BlockHeight = 840003
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840003, tx3)}))

	entry = utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	assert.Equal(t, uint128.From64(2), entry.Mints)
	balances = utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx3.TxHash, Index: 1}))
	assert.Empty(t, balances)
}

func TestProcessTransfer(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	seedEntry(t, dg, runeId, nil)
	prevOutPoint := wire.OutPoint{Hash: hashFromByte(0x21), Index: 0}
	seedBalance(t, dg, prevOutPoint, runeId, 1000, 840000)

	pkScript := utils.Must(runes.Runestone{
		Edicts: []runes.Edict{
			{Id: runeId, Amount: uint128.From64(300), Output: 1},
		},
		Pointer: lo.ToPtr(uint64(2)),
	}.Encipher())
	tx := &types.Transaction{
		BlockHeight: 840010,
		Index:       2,
		TxHash:      hashFromByte(0x22),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: prevOutPoint.Hash,
			PreviousOutIndex:  prevOutPoint.Index,
		}},
		TxOut: []*types.TxOut{
			opReturnOutput(pkScript),
			{PkScript: p2trPkScript(0x01)},
			{PkScript: p2trPkScript(0x02)},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840010, tx)}))

	out1 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 1}))
	out2 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 2}))
	assert.Equal(t, uint128.From64(300), out1[runeId])
	// remainder follows the pointer
	assert.Equal(t, uint128.From64(700), out2[runeId])

	// input outpoint is spent
	spent := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, prevOutPoint))
	assert.Empty(t, spent)

	// conservation: nothing burned
	entry := utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	assert.True(t, entry.BurnedAmount.IsZero())
}

func TestProcessTransferSplit(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	seedEntry(t, dg, runeId, nil)
	prevOutPoint := wire.OutPoint{Hash: hashFromByte(0x31), Index: 0}
	seedBalance(t, dg, prevOutPoint, runeId, 1001, 840000)

	// zero amount with output == len(TxOut) splits over all non-OP_RETURN
	// outputs, remainder to the first
	pkScript := utils.Must(runes.Runestone{
		Edicts: []runes.Edict{
			{Id: runeId, Amount: uint128.Uint128{}, Output: 3},
		},
	}.Encipher())
	tx := &types.Transaction{
		BlockHeight: 840010,
		Index:       2,
		TxHash:      hashFromByte(0x32),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: prevOutPoint.Hash,
			PreviousOutIndex:  prevOutPoint.Index,
		}},
		TxOut: []*types.TxOut{
			opReturnOutput(pkScript),
			{PkScript: p2trPkScript(0x01)},
			{PkScript: p2trPkScript(0x02)},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840010, tx)}))

	out1 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 1}))
	out2 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 2}))
	assert.Equal(t, uint128.From64(501), out1[runeId])
	assert.Equal(t, uint128.From64(500), out2[runeId])
}

func TestProcessNoRunestoneForwardsToFirstOutput(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	seedEntry(t, dg, runeId, nil)
	prevOutPoint := wire.OutPoint{Hash: hashFromByte(0x41), Index: 0}
	seedBalance(t, dg, prevOutPoint, runeId, 250, 840000)

	tx := &types.Transaction{
		BlockHeight: 840010,
		Index:       2,
		TxHash:      hashFromByte(0x42),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: prevOutPoint.Hash,
			PreviousOutIndex:  prevOutPoint.Index,
		}},
		TxOut: []*types.TxOut{
			{PkScript: p2trPkScript(0x01)},
			{PkScript: p2trPkScript(0x02)},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840010, tx)}))

	out0 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 0}))
	assert.Equal(t, uint128.From64(250), out0[runeId])
}

func TestProcessCenotaphBurns(t *testing.T) {
	ctx := context.Background()
	processor, dg, _ := newTestProcessor()

	runeId := utils.Must(runes.NewRuneId(840000, 1))
	seedEntry(t, dg, runeId, nil)
	prevOutPoint := wire.OutPoint{Hash: hashFromByte(0x51), Index: 0}
	seedBalance(t, dg, prevOutPoint, runeId, 500, 840000)

	// invalid script after the magic number makes the runestone a cenotaph
	cenotaphPkScript := []byte{txscript.OP_RETURN, txscript.OP_13, txscript.OP_PUSHDATA1}
	tx := &types.Transaction{
		BlockHeight: 840010,
		Index:       2,
		TxHash:      hashFromByte(0x52),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: prevOutPoint.Hash,
			PreviousOutIndex:  prevOutPoint.Index,
		}},
		TxOut: []*types.TxOut{
			opReturnOutput(cenotaphPkScript),
			{PkScript: p2trPkScript(0x01)},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840010, tx)}))

	out1 := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: tx.TxHash, Index: 1}))
	assert.Empty(t, out1)

	entry := utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	assert.Equal(t, uint128.From64(500), entry.BurnedAmount)
}

func TestRevertData(t *testing.T) {
	ctx := context.Background()
	processor, dg, client := newTestProcessor()

	name := utils.Must(runes.NewRuneFromString("ZZZZZZZZZZZZ"))
	runestone := runes.Runestone{
		Etching: &runes.Etching{Rune: &name, Premine: lo.ToPtr(uint128.From64(1000))},
	}
	etchTx := etchingSetup(t, client, runestone, name, 840000)
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, etchTx)}))

	runeId := utils.Must(runes.NewRuneId(840000, 1))

	// spend the premine in a later block
	transferPkScript := utils.Must(runes.Runestone{}.Encipher())
	transferTx := &types.Transaction{
		BlockHeight: 840001,
		Index:       1,
		TxHash:      hashFromByte(0x61),
		TxIn: []*types.TxIn{{
			PreviousOutTxHash: etchTx.TxHash,
			PreviousOutIndex:  1,
		}},
		TxOut: []*types.TxOut{
			opReturnOutput(transferPkScript),
			{PkScript: p2trPkScript(0x01)},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840001, transferTx)}))

	spent := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: etchTx.TxHash, Index: 1}))
	require.Empty(t, spent)

	// reverting the transfer block restores the premine outpoint
	require.NoError(t, processor.RevertData(ctx, 840001))

	restored := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: etchTx.TxHash, Index: 1}))
	assert.Equal(t, uint128.From64(1000), restored[runeId])
	moved := utils.Must(dg.GetRunesBalancesAtOutPoint(ctx, wire.OutPoint{Hash: transferTx.TxHash, Index: 1}))
	assert.Empty(t, moved)
	_, err := dg.GetIndexedBlockByHeight(ctx, 840001)
	assert.ErrorIs(t, err, errs.NotFound)

	// reverting the etching block removes the rune entirely
	require.NoError(t, processor.RevertData(ctx, 840000))

	_, err = dg.GetRuneEntryByRuneId(ctx, runeId)
	assert.ErrorIs(t, err, errs.NotFound)
	_, err = dg.GetLatestBlock(ctx)
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestVerifyStates(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh database", func(t *testing.T) {
		dg := newMemRunesDg()
		infoDg := &memIndexerInfoDg{}
		processor := NewProcessor(dg, infoDg, &stubBitcoinClient{}, common.NetworkMainnet)

		require.NoError(t, processor.VerifyStates(ctx))
		require.NotNil(t, infoDg.state)
		assert.Equal(t, int32(DBVersion), infoDg.state.DBVersion)
		assert.Equal(t, common.NetworkMainnet, infoDg.state.Network)

		// genesis rune is seeded on mainnet
		entry, err := dg.GetRuneEntryByRuneId(ctx, genesisRuneId)
		require.NoError(t, err)
		assert.Equal(t, "UNCOMMON•GOODS", entry.SpacedRune.String())
		assert.True(t, entry.Turbo)

		// idempotent
		require.NoError(t, processor.VerifyStates(ctx))
	})

	t.Run("network mismatch", func(t *testing.T) {
		infoDg := &memIndexerInfoDg{state: &entity.IndexerState{DBVersion: DBVersion, Network: common.NetworkTestnet}}
		processor := NewProcessor(newMemRunesDg(), infoDg, &stubBitcoinClient{}, common.NetworkMainnet)
		assert.ErrorIs(t, processor.VerifyStates(ctx), errs.ConflictSetting)
	})

	t.Run("db version mismatch", func(t *testing.T) {
		infoDg := &memIndexerInfoDg{state: &entity.IndexerState{DBVersion: DBVersion + 1, Network: common.NetworkMainnet}}
		processor := NewProcessor(newMemRunesDg(), infoDg, &stubBitcoinClient{}, common.NetworkMainnet)
		assert.ErrorIs(t, processor.VerifyStates(ctx), errs.ConflictSetting)
	})

	t.Run("no genesis rune on testnet", func(t *testing.T) {
		dg := newMemRunesDg()
		processor := NewProcessor(dg, &memIndexerInfoDg{}, &stubBitcoinClient{}, common.NetworkTestnet)
		require.NoError(t, processor.VerifyStates(ctx))
		_, err := dg.GetRuneEntryByRuneId(ctx, genesisRuneId)
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("current block falls back to activation height", func(t *testing.T) {
		processor, _, _ := newTestProcessor()
		header, err := processor.CurrentBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(839999), header.Height)
	})
}

func TestProcessConservation(t *testing.T) {
	ctx := context.Background()
	processor, dg, client := newTestProcessor()

	name := utils.Must(runes.NewRuneFromString("ZZZZZZZZZZZZ"))
	runestone := runes.Runestone{
		Etching: &runes.Etching{
			Rune:    &name,
			Premine: lo.ToPtr(uint128.From64(1000)),
			Terms: &runes.Terms{
				Amount: lo.ToPtr(uint128.From64(100)),
				Cap:    lo.ToPtr(uint128.From64(5)),
			},
		},
	}
	etchTx := etchingSetup(t, client, runestone, name, 840000)
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840000, etchTx)}))
	runeId := utils.Must(runes.NewRuneId(840000, 1))

	mint1 := mintTx(t, runeId, hashFromByte(0xf5))
	mint1.BlockHeight = 840001
	mint2 := mintTx(t, runeId, hashFromByte(0xf6))
	mint2.BlockHeight = 840001
	mint2.Index = 2
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840001, mint1, mint2)}))

	// move 300 of the premine to output 1, point the rest at the OP_RETURN
	// output so it burns
	transferStone := runes.Runestone{
		Edicts:  []runes.Edict{{Id: runeId, Amount: uint128.From64(300), Output: 1}},
		Pointer: lo.ToPtr(uint64(0)),
	}
	transferTx := &types.Transaction{
		BlockHeight: 840002,
		Index:       1,
		TxHash:      hashFromByte(0xf7),
		TxIn:        []*types.TxIn{{PreviousOutTxHash: etchTx.TxHash, PreviousOutIndex: 1}},
		TxOut: []*types.TxOut{
			opReturnOutput(utils.Must(transferStone.Encipher())),
			{PkScript: p2trPkScript(0xcc), Value: 546},
		},
	}
	require.NoError(t, processor.Process(ctx, []*types.Block{blockAt(840002, transferTx)}))

	entry := utils.Must(dg.GetRuneEntryByRuneId(ctx, runeId))
	minted := utils.Must(entry.MintedAmount())
	supply := utils.Must(entry.Supply())
	assert.Equal(t, uint128.From64(1200), minted)

	var unspent uint128.Uint128
	for _, balance := range dg.balances {
		if balance.SpentHeight == nil {
			unspent = unspent.Add(balance.Amount)
		}
	}

	// unallocated pointed at OP_RETURN was burned; everything minted is
	// accounted for
	assert.Equal(t, uint128.From64(700), entry.BurnedAmount)
	assert.Equal(t, minted, unspent.Add(entry.BurnedAmount))
	assert.True(t, minted.Cmp(supply) <= 0)
}
