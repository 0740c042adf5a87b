package runes

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"github.com/samber/lo"
)

func (p *Processor) Process(ctx context.Context, blocks []*types.Block) error {
	for _, block := range blocks {
		if err := p.processBlock(ctx, block); err != nil {
			return errors.Wrapf(err, "error processing block %d", block.Header.Height)
		}
	}
	return nil
}

func (p *Processor) processBlock(ctx context.Context, block *types.Block) error {
	dgTx, err := p.runesDg.BeginRunesTx(ctx)
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	defer func() {
		_ = dgTx.Rollback(ctx)
	}()

	for _, tx := range block.Transactions {
		if err := p.processTx(ctx, dgTx, tx, block.Header); err != nil {
			return errors.Wrapf(err, "error processing tx %s", tx.TxHash)
		}
	}

	if err := dgTx.CreateIndexedBlock(ctx, &entity.IndexedBlock{
		Height:    block.Header.Height,
		Hash:      block.Header.Hash,
		PrevHash:  block.Header.PrevBlock,
		Timestamp: block.Header.Timestamp,
	}); err != nil {
		return errors.Wrap(err, "can't create indexed block")
	}

	if err := dgTx.Commit(ctx); err != nil {
		return errors.Wrap(err, "can't commit transaction")
	}
	logger.DebugContext(ctx, "indexed block",
		slogx.Int64("height", block.Header.Height),
		slogx.Stringer("hash", block.Header.Hash),
		slogx.Int("txs", len(block.Transactions)),
	)
	return nil
}

func (p *Processor) processTx(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, tx *types.Transaction, blockHeader types.BlockHeader) error {
	runestone, err := runes.DecipherRunestone(tx)
	if err != nil {
		return errors.Wrap(err, "can't decipher runestone")
	}

	unallocated, inputBalances, err := p.getUnallocatedRunes(ctx, dgTx, tx.TxIn)
	if err != nil {
		return errors.Wrap(err, "can't get unallocated runes from inputs")
	}
	if runestone == nil && len(unallocated) == 0 {
		// not a rune transaction
		return nil
	}

	allocated := make(map[int]map[runes.RuneId]uint128.Uint128)
	mints := make(map[runes.RuneId]uint128.Uint128)
	burns := make(map[runes.RuneId]uint128.Uint128)

	allocate := func(output int, runeId runes.RuneId, amount uint128.Uint128) {
		if amount.Cmp(unallocated[runeId]) > 0 {
			amount = unallocated[runeId]
		}
		if amount.IsZero() {
			return
		}
		unallocated[runeId] = unallocated[runeId].Sub(amount)
		if allocated[output] == nil {
			allocated[output] = make(map[runes.RuneId]uint128.Uint128)
		}
		allocated[output][runeId] = allocated[output][runeId].Add(amount)
	}

	var runeEtched bool
	if runestone != nil {
		if runestone.Mint != nil {
			amount, err := p.mint(ctx, dgTx, *runestone.Mint, blockHeader)
			if err != nil {
				return errors.Wrap(err, "can't process mint")
			}
			if !amount.IsZero() {
				unallocated[*runestone.Mint] = unallocated[*runestone.Mint].Add(amount)
				mints[*runestone.Mint] = mints[*runestone.Mint].Add(amount)
			}
		}

		etchedRuneId, etchedRune, commitmentTxHash, err := p.getEtchedRune(ctx, dgTx, tx, runestone)
		if err != nil {
			return errors.Wrap(err, "can't resolve etching")
		}
		runeEtched = etchedRune != nil

		if !runestone.Cenotaph {
			if runeEtched && runestone.Etching.Premine != nil {
				unallocated[etchedRuneId] = unallocated[etchedRuneId].Add(*runestone.Etching.Premine)
			}

			for _, edict := range runestone.Edicts {
				runeId := edict.Id
				if runeId == (runes.RuneId{}) {
					if !runeEtched {
						continue
					}
					runeId = etchedRuneId
				}

				if edict.Output == len(tx.TxOut) {
					// special case: distribute over all non-OP_RETURN outputs
					destinations := make([]int, 0, len(tx.TxOut))
					for i, txOut := range tx.TxOut {
						if !txOut.IsOpReturn() {
							destinations = append(destinations, i)
						}
					}
					if len(destinations) == 0 {
						continue
					}
					if edict.Amount.IsZero() {
						// split evenly, remainder to the first outputs
						amount, remainder := unallocated[runeId].QuoRem64(uint64(len(destinations)))
						for i, dest := range destinations {
							share := amount
							if uint64(i) < remainder {
								share = share.Add64(1)
							}
							allocate(dest, runeId, share)
						}
					} else {
						for _, dest := range destinations {
							allocate(dest, runeId, edict.Amount)
						}
					}
				} else {
					if edict.Amount.IsZero() {
						allocate(edict.Output, runeId, unallocated[runeId])
					} else {
						allocate(edict.Output, runeId, edict.Amount)
					}
				}
			}
		}

		if runeEtched {
			if err := p.createRuneEntry(ctx, dgTx, runestone, etchedRuneId, *etchedRune, commitmentTxHash, tx, blockHeader); err != nil {
				return errors.Wrap(err, "can't create rune entry")
			}
		}
	}

	if runestone != nil && runestone.Cenotaph {
		// all input and minted runes in a cenotaph are burned
		for runeId, amount := range unallocated {
			if amount.IsZero() {
				continue
			}
			burns[runeId] = burns[runeId].Add(amount)
		}
	} else {
		pointer := -1
		if runestone != nil && runestone.Pointer != nil {
			pointer = int(*runestone.Pointer)
		} else {
			for i, txOut := range tx.TxOut {
				if !txOut.IsOpReturn() {
					pointer = i
					break
				}
			}
		}
		if pointer >= 0 {
			for runeId, amount := range unallocated {
				allocate(pointer, runeId, amount)
			}
		} else {
			for runeId, amount := range unallocated {
				if amount.IsZero() {
					continue
				}
				burns[runeId] = burns[runeId].Add(amount)
			}
		}
	}

	// runes assigned to OP_RETURN outputs are burned
	outPointBalances := make([]*entity.OutPointBalance, 0)
	for output, balances := range allocated {
		if tx.TxOut[output].IsOpReturn() {
			for runeId, amount := range balances {
				burns[runeId] = burns[runeId].Add(amount)
			}
			continue
		}
		for runeId, amount := range balances {
			outPointBalances = append(outPointBalances, &entity.OutPointBalance{
				RuneId: runeId,
				OutPoint: wire.OutPoint{
					Hash:  tx.TxHash,
					Index: uint32(output),
				},
				Amount:      amount,
				BlockHeight: uint64(tx.BlockHeight),
			})
		}
	}

	if len(outPointBalances) > 0 {
		if err := dgTx.CreateOutPointBalances(ctx, outPointBalances); err != nil {
			return errors.Wrap(err, "can't create outpoint balances")
		}
	}
	for _, outPoint := range spentOutPoints(inputBalances) {
		if err := dgTx.SpendOutPointBalances(ctx, outPoint, uint64(tx.BlockHeight)); err != nil {
			return errors.Wrap(err, "can't spend outpoint balances")
		}
	}
	if err := p.applyBurns(ctx, dgTx, burns, blockHeader); err != nil {
		return errors.Wrap(err, "can't update burned amounts")
	}

	if err := dgTx.CreateRuneTransaction(ctx, &entity.RuneTransaction{
		Hash:        tx.TxHash,
		BlockHeight: uint64(tx.BlockHeight),
		Index:       tx.Index,
		Timestamp:   blockHeader.Timestamp,
		Inputs:      inputBalances,
		Outputs:     outPointBalances,
		Mints:       mints,
		Burns:       burns,
		Runestone:   runestone,
		RuneEtched:  runeEtched,
	}); err != nil {
		return errors.Wrap(err, "can't create rune transaction")
	}
	return nil
}

// getUnallocatedRunes sums the rune balances held by the transaction inputs.
func (p *Processor) getUnallocatedRunes(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, txIns []*types.TxIn) (map[runes.RuneId]uint128.Uint128, []*entity.OutPointBalance, error) {
	unallocated := make(map[runes.RuneId]uint128.Uint128)
	inputBalances := make([]*entity.OutPointBalance, 0)
	for _, txIn := range txIns {
		outPoint := wire.OutPoint{
			Hash:  txIn.PreviousOutTxHash,
			Index: txIn.PreviousOutIndex,
		}
		balances, err := dgTx.GetRunesBalancesAtOutPoint(ctx, outPoint)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "can't get balances at outpoint %s", outPoint)
		}
		for runeId, amount := range balances {
			unallocated[runeId] = unallocated[runeId].Add(amount)
			inputBalances = append(inputBalances, &entity.OutPointBalance{
				RuneId:   runeId,
				OutPoint: outPoint,
				Amount:   amount,
			})
		}
	}
	return unallocated, inputBalances, nil
}

// mint returns the amount produced by a mint of the given rune, or zero if
// the mint is void. Void mints are not errors.
func (p *Processor) mint(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, runeId runes.RuneId, blockHeader types.BlockHeader) (uint128.Uint128, error) {
	entry, err := dgTx.GetRuneEntryByRuneId(ctx, runeId)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return uint128.Uint128{}, nil
		}
		return uint128.Uint128{}, errors.Wrap(err, "can't get rune entry")
	}

	amount, err := entry.GetMintableAmount(uint64(blockHeader.Height))
	if err != nil {
		return uint128.Uint128{}, nil
	}

	entry.Mints = entry.Mints.Add64(1)
	if entry.Terms != nil && entry.Terms.Cap != nil && entry.Mints.Cmp(*entry.Terms.Cap) >= 0 {
		entry.CompletedAt = blockHeader.Timestamp
		height := uint64(blockHeader.Height)
		entry.CompletedAtHeight = &height
	}
	if err := dgTx.CreateRuneEntryState(ctx, entry, uint64(blockHeader.Height)); err != nil {
		return uint128.Uint128{}, errors.Wrap(err, "can't update rune entry state")
	}
	return amount, nil
}

// getEtchedRune validates the etching in the runestone. A failed validation
// voids the etching without failing the transaction. The returned rune is nil
// if no rune was etched.
func (p *Processor) getEtchedRune(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, tx *types.Transaction, runestone *runes.Runestone) (runes.RuneId, *runes.Rune, *chainhash.Hash, error) {
	if runestone.Etching == nil {
		return runes.RuneId{}, nil, nil, nil
	}

	var rune runes.Rune
	var commitmentTxHash *chainhash.Hash
	if runestone.Etching.Rune != nil {
		rune = *runestone.Etching.Rune

		if rune.IsReserved() {
			return runes.RuneId{}, nil, nil, nil
		}
		minimum := runes.MinimumRuneAtHeight(p.network, uint64(tx.BlockHeight))
		if rune.Cmp(minimum) < 0 {
			return runes.RuneId{}, nil, nil, nil
		}
		if _, err := dgTx.GetRuneIdFromRune(ctx, rune); err == nil {
			// name already etched
			return runes.RuneId{}, nil, nil, nil
		} else if !errors.Is(err, errs.NotFound) {
			return runes.RuneId{}, nil, nil, errors.Wrap(err, "can't check rune existence")
		}
		commitTxHash, err := p.txCommitsToRune(ctx, tx, rune)
		if err != nil {
			return runes.RuneId{}, nil, nil, errors.Wrap(err, "can't verify rune commitment")
		}
		if commitTxHash == nil {
			return runes.RuneId{}, nil, nil, nil
		}
		commitmentTxHash = commitTxHash
	} else {
		rune = runes.GetReservedRune(uint64(tx.BlockHeight), tx.Index)
	}

	runeId, err := runes.NewRuneId(uint64(tx.BlockHeight), tx.Index)
	if err != nil {
		return runes.RuneId{}, nil, nil, errors.Wrap(err, "invalid rune id for etching")
	}
	return runeId, &rune, commitmentTxHash, nil
}

// txCommitsToRune checks that one of the transaction inputs reveals a
// tapscript containing the rune commitment, spending a taproot output
// confirmed at least RUNE_COMMIT_BLOCKS blocks before the etching.
func (p *Processor) txCommitsToRune(ctx context.Context, tx *types.Transaction, rune runes.Rune) (*chainhash.Hash, error) {
	commitment := rune.Commitment()
	for _, txIn := range tx.TxIn {
		tapscript, ok := extractTapScript(txIn.Witness)
		if !ok {
			continue
		}
		tokenizer := txscript.MakeScriptTokenizer(0, tapscript)
		for tokenizer.Next() {
			data := tokenizer.Data()
			if data == nil || !bytes.Equal(data, commitment) {
				continue
			}

			prevTx, err := p.bitcoinClient.GetTransaction(ctx, txIn.PreviousOutTxHash)
			if err != nil {
				return nil, errors.Wrapf(err, "can't get previous tx %s", txIn.PreviousOutTxHash)
			}
			if int(txIn.PreviousOutIndex) >= len(prevTx.TxOut) {
				continue
			}
			if !txscript.IsPayToTaproot(prevTx.TxOut[txIn.PreviousOutIndex].PkScript) {
				continue
			}
			confirmations := tx.BlockHeight - prevTx.BlockHeight + 1
			if confirmations >= runes.RUNE_COMMIT_BLOCKS {
				return &prevTx.TxHash, nil
			}
		}
		// malformed tapscripts past the commitment are ignored
	}
	return nil, nil
}

// extractTapScript returns the script of a taproot script-path spend witness.
func extractTapScript(witness [][]byte) ([]byte, bool) {
	witness = removeAnnexFromWitness(witness)
	if len(witness) < 2 {
		return nil, false
	}
	return witness[len(witness)-2], true
}

func removeAnnexFromWitness(witness [][]byte) [][]byte {
	if len(witness) >= 2 {
		last := witness[len(witness)-1]
		if len(last) > 0 && last[0] == txscript.TaprootAnnexTag {
			return witness[:len(witness)-1]
		}
	}
	return witness
}

func (p *Processor) createRuneEntry(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, runestone *runes.Runestone, runeId runes.RuneId, etchedRune runes.Rune, commitmentTxHash *chainhash.Hash, tx *types.Transaction, blockHeader types.BlockHeader) error {
	count, err := dgTx.CountRuneEntries(ctx, datagateway.ListRuneEntriesParams{})
	if err != nil {
		return errors.Wrap(err, "can't count rune entries")
	}

	var entry *runes.RuneEntry
	if runestone.Cenotaph {
		// a rune etched in a cenotaph has no premine, no terms and cannot
		// be minted, but the name is still taken
		entry = &runes.RuneEntry{
			RuneId:           runeId,
			Number:           uint64(count),
			SpacedRune:       runes.NewSpacedRune(etchedRune, 0),
			Mints:            uint128.Uint128{},
			EtchingBlock:     uint64(tx.BlockHeight),
			EtchingTxHash:    tx.TxHash,
			CommitmentTxHash: commitmentTxHash,
			EtchedAt:         blockHeader.Timestamp,
		}
	} else {
		etching := runestone.Etching
		var symbol rune
		if etching.Symbol != nil {
			symbol = *etching.Symbol
		}
		entry = &runes.RuneEntry{
			RuneId:           runeId,
			Number:           uint64(count),
			Divisibility:     lo.FromPtr(etching.Divisibility),
			Premine:          lo.FromPtr(etching.Premine),
			SpacedRune:       runes.NewSpacedRune(etchedRune, lo.FromPtr(etching.Spacers)),
			Symbol:           symbol,
			Terms:            etching.Terms,
			Turbo:            etching.Turbo,
			EtchingBlock:     uint64(tx.BlockHeight),
			EtchingTxHash:    tx.TxHash,
			CommitmentTxHash: commitmentTxHash,
			EtchedAt:         blockHeader.Timestamp,
		}
	}
	if err := dgTx.CreateRuneEntry(ctx, entry, uint64(tx.BlockHeight)); err != nil {
		return errors.Wrap(err, "can't create rune entry")
	}
	return nil
}

func (p *Processor) applyBurns(ctx context.Context, dgTx datagateway.RunesDataGatewayWithTx, burns map[runes.RuneId]uint128.Uint128, blockHeader types.BlockHeader) error {
	if len(burns) == 0 {
		return nil
	}
	entries, err := dgTx.GetRuneEntryByRuneIdBatch(ctx, lo.Keys(burns))
	if err != nil {
		return errors.Wrap(err, "can't get rune entries")
	}
	for runeId, amount := range burns {
		entry, ok := entries[runeId]
		if !ok {
			return errors.Wrapf(errs.NotFound, "missing rune entry for burned rune %s", runeId)
		}
		entry.BurnedAmount = entry.BurnedAmount.Add(amount)
		if err := dgTx.CreateRuneEntryState(ctx, entry, uint64(blockHeader.Height)); err != nil {
			return errors.Wrap(err, "can't update rune entry state")
		}
	}
	return nil
}

func spentOutPoints(inputBalances []*entity.OutPointBalance) []wire.OutPoint {
	seen := make(map[wire.OutPoint]struct{})
	outPoints := make([]wire.OutPoint, 0, len(inputBalances))
	for _, balance := range inputBalances {
		if _, ok := seen[balance.OutPoint]; ok {
			continue
		}
		seen[balance.OutPoint] = struct{}{}
		outPoints = append(outPoints, balance.OutPoint)
	}
	return outPoints
}
