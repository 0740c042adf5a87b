package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/modules/runes/datagateway"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/samber/lo"
)

const selectRuneEntry = `
SELECT e.rune_id, e.number, e.rune, e.spacers, e.divisibility, e.premine, e.symbol,
	e.terms, e.terms_amount, e.terms_cap, e.terms_height_start, e.terms_height_end,
	e.terms_offset_start, e.terms_offset_end, e.turbo, e.etching_block, e.etching_tx_hash,
	e.commitment_tx_hash, e.etched_at,
	COALESCE(s.mints, 0), COALESCE(s.burned_amount, 0), s.completed_at, s.completed_at_height
FROM runes_entries e
LEFT JOIN LATERAL (
	SELECT mints, burned_amount, completed_at, completed_at_height
	FROM runes_entry_states
	WHERE rune_id = e.rune_id
	ORDER BY id DESC
	LIMIT 1
) s ON TRUE`

// selectRuneEntryAt is the height-pinned variant of selectRuneEntry: the state
// snapshot is the latest one written at or below the height bound to the
// given placeholder.
func selectRuneEntryAt(heightArg int) string {
	return `
SELECT e.rune_id, e.number, e.rune, e.spacers, e.divisibility, e.premine, e.symbol,
	e.terms, e.terms_amount, e.terms_cap, e.terms_height_start, e.terms_height_end,
	e.terms_offset_start, e.terms_offset_end, e.turbo, e.etching_block, e.etching_tx_hash,
	e.commitment_tx_hash, e.etched_at,
	COALESCE(s.mints, 0), COALESCE(s.burned_amount, 0), s.completed_at, s.completed_at_height
FROM runes_entries e
LEFT JOIN LATERAL (
	SELECT mints, burned_amount, completed_at, completed_at_height
	FROM runes_entry_states
	WHERE rune_id = e.rune_id AND block_height <= $` + itoa(heightArg) + `
	ORDER BY block_height DESC, id DESC
	LIMIT 1
) s ON TRUE`
}

func scanRuneEntry(row pgx.Row) (*runes.RuneEntry, error) {
	var r runeEntryRow
	if err := row.Scan(
		&r.RuneId, &r.Number, &r.Rune, &r.Spacers, &r.Divisibility, &r.Premine, &r.Symbol,
		&r.HasTerms, &r.TermsAmount, &r.TermsCap, &r.TermsHeightStart, &r.TermsHeightEnd,
		&r.TermsOffsetStart, &r.TermsOffsetEnd, &r.Turbo, &r.EtchingBlock, &r.EtchingTxHash,
		&r.CommitmentTxHash, &r.EtchedAt,
		&r.Mints, &r.BurnedAmount, &r.CompletedAt, &r.CompletedAtHeight,
	); err != nil {
		return nil, err
	}
	return r.toEntry()
}

func (r *Repository) GetLatestBlock(ctx context.Context) (types.BlockHeader, error) {
	row := r.db.QueryRow(ctx, `SELECT height, hash, prev_hash, timestamp FROM runes_indexed_blocks ORDER BY height DESC LIMIT 1`)
	block, err := scanIndexedBlock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.BlockHeader{}, errors.WithStack(errs.NotFound)
		}
		return types.BlockHeader{}, errors.Wrap(err, "can't query latest block")
	}
	return types.BlockHeader{
		Height:    block.Height,
		Hash:      block.Hash,
		PrevBlock: block.PrevHash,
		Timestamp: block.Timestamp,
	}, nil
}

func (r *Repository) GetIndexedBlockByHeight(ctx context.Context, height int64) (*entity.IndexedBlock, error) {
	row := r.db.QueryRow(ctx, `SELECT height, hash, prev_hash, timestamp FROM runes_indexed_blocks WHERE height = $1`, height)
	block, err := scanIndexedBlock(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrapf(err, "can't query indexed block at height %d", height)
	}
	return block, nil
}

func scanIndexedBlock(row pgx.Row) (*entity.IndexedBlock, error) {
	var (
		block              entity.IndexedBlock
		hashStr, prevHash  string
	)
	if err := row.Scan(&block.Height, &hashStr, &prevHash, &block.Timestamp); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid block hash in row")
	}
	prev, err := chainhash.NewHashFromStr(prevHash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid prev block hash in row")
	}
	block.Hash = *hash
	block.PrevHash = *prev
	return &block, nil
}

func (r *Repository) GetRuneIdFromRune(ctx context.Context, rune runes.Rune) (runes.RuneId, error) {
	var runeIdStr string
	err := r.db.QueryRow(ctx, `SELECT rune_id FROM runes_entries WHERE rune = $1`, rune.String()).Scan(&runeIdStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return runes.RuneId{}, errors.WithStack(errs.NotFound)
		}
		return runes.RuneId{}, errors.Wrap(err, "can't query rune id")
	}
	runeId, err := runes.NewRuneIdFromString(runeIdStr)
	if err != nil {
		return runes.RuneId{}, errors.Wrap(err, "invalid rune id in row")
	}
	return runeId, nil
}

func (r *Repository) GetRuneEntryByRuneId(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	row := r.db.QueryRow(ctx, selectRuneEntry+` WHERE e.rune_id = $1`, runeId.String())
	entry, err := scanRuneEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrapf(err, "can't query rune entry %s", runeId)
	}
	return entry, nil
}

func (r *Repository) GetRuneEntryByRuneIdAndHeight(ctx context.Context, runeId runes.RuneId, blockHeight uint64) (*runes.RuneEntry, error) {
	row := r.db.QueryRow(ctx,
		selectRuneEntryAt(2)+` WHERE e.rune_id = $1 AND e.etching_block <= $2`,
		runeId.String(), int64(blockHeight),
	)
	entry, err := scanRuneEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrapf(err, "can't query rune entry %s at height %d", runeId, blockHeight)
	}
	return entry, nil
}

func (r *Repository) GetRuneEntryByRuneIdBatch(ctx context.Context, runeIds []runes.RuneId) (map[runes.RuneId]*runes.RuneEntry, error) {
	ids := lo.Map(runeIds, func(runeId runes.RuneId, _ int) string {
		return runeId.String()
	})
	rows, err := r.db.Query(ctx, selectRuneEntry+` WHERE e.rune_id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "can't query rune entries")
	}
	defer rows.Close()

	result := make(map[runes.RuneId]*runes.RuneEntry, len(runeIds))
	for rows.Next() {
		entry, err := scanRuneEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan rune entry")
		}
		result[entry.RuneId] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading rune entries")
	}
	return result, nil
}

// likeEscaper escapes LIKE metacharacters in user-supplied search prefixes.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func listRuneEntriesFilter(params datagateway.ListRuneEntriesParams) (where string, args []any, heightArg int) {
	var conds []string
	if params.Search != "" {
		args = append(args, likeEscaper.Replace(strings.ToUpper(params.Search)))
		conds = append(conds, `e.rune LIKE $`+itoa(len(args))+` || '%'`)
	}
	if params.AfterRuneId != nil {
		args = append(args, int64(params.AfterRuneId.BlockHeight), int32(params.AfterRuneId.TxIndex))
		conds = append(conds, `(e.block_height, e.tx_idx) > ($`+itoa(len(args)-1)+`, $`+itoa(len(args))+`)`)
	}
	if params.Height > 0 {
		args = append(args, int64(params.Height))
		heightArg = len(args)
		conds = append(conds, `e.etching_block <= $`+itoa(heightArg))
	}
	if len(conds) == 0 {
		return "", args, heightArg
	}
	return " WHERE " + strings.Join(conds, " AND "), args, heightArg
}

func (r *Repository) GetRuneEntries(ctx context.Context, params datagateway.ListRuneEntriesParams) ([]*runes.RuneEntry, error) {
	where, args, heightArg := listRuneEntriesFilter(params)
	base := selectRuneEntry
	if heightArg > 0 {
		base = selectRuneEntryAt(heightArg)
	}
	order := ` ORDER BY e.block_height, e.tx_idx`
	if params.OrderDesc {
		order = ` ORDER BY e.block_height DESC, e.tx_idx DESC`
	}
	query := base + where + order
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "can't query rune entries")
	}
	defer rows.Close()

	entries := make([]*runes.RuneEntry, 0)
	for rows.Next() {
		entry, err := scanRuneEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan rune entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading rune entries")
	}
	return entries, nil
}

func (r *Repository) CountRuneEntries(ctx context.Context, params datagateway.ListRuneEntriesParams) (int64, error) {
	where, args, _ := listRuneEntriesFilter(params)
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM runes_entries e`+where, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "can't count rune entries")
	}
	return count, nil
}

func (r *Repository) GetRunesBalancesAtOutPoint(ctx context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error) {
	rows, err := r.db.Query(ctx,
		`SELECT rune_id, amount FROM runes_outpoint_balances WHERE tx_hash = $1 AND tx_idx = $2 AND spent_height IS NULL`,
		outPoint.Hash.String(), int32(outPoint.Index),
	)
	if err != nil {
		return nil, errors.Wrap(err, "can't query outpoint balances")
	}
	defer rows.Close()

	balances := make(map[runes.RuneId]uint128.Uint128)
	for rows.Next() {
		var (
			runeIdStr string
			amount    pgtype.Numeric
		)
		if err := rows.Scan(&runeIdStr, &amount); err != nil {
			return nil, errors.Wrap(err, "can't scan outpoint balance")
		}
		runeId, err := runes.NewRuneIdFromString(runeIdStr)
		if err != nil {
			return nil, errors.Wrap(err, "invalid rune id in row")
		}
		value, err := uint128FromNumeric(amount)
		if err != nil {
			return nil, errors.Wrap(err, "invalid amount in row")
		}
		balances[runeId] = balances[runeId].Add(value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading outpoint balances")
	}
	return balances, nil
}

func (r *Repository) GetRuneTransaction(ctx context.Context, hash chainhash.Hash) (*entity.RuneTransaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT hash, block_height, idx, timestamp, inputs, outputs, mints, burns, runestone, rune_etched
		FROM runes_transactions WHERE hash = $1`,
		hash.String(),
	)

	var (
		hashStr                        string
		runeTx                         entity.RuneTransaction
		inputs, outputs, mints, burns  []byte
		runestoneData                  []byte
	)
	if err := row.Scan(&hashStr, &runeTx.BlockHeight, &runeTx.Index, &runeTx.Timestamp,
		&inputs, &outputs, &mints, &burns, &runestoneData, &runeTx.RuneEtched); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "can't query rune transaction")
	}

	parsedHash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid tx hash in row")
	}
	runeTx.Hash = *parsedHash
	if runeTx.Inputs, err = unmarshalOutPointBalances(inputs); err != nil {
		return nil, err
	}
	if runeTx.Outputs, err = unmarshalOutPointBalances(outputs); err != nil {
		return nil, err
	}
	if runeTx.Mints, err = unmarshalRuneAmounts(mints); err != nil {
		return nil, err
	}
	if runeTx.Burns, err = unmarshalRuneAmounts(burns); err != nil {
		return nil, err
	}
	if len(runestoneData) > 0 {
		var runestone runes.Runestone
		if err := json.Unmarshal(runestoneData, &runestone); err != nil {
			return nil, errors.Wrap(err, "can't unmarshal runestone")
		}
		runeTx.Runestone = &runestone
	}
	return &runeTx, nil
}

func (r *Repository) CreateIndexedBlock(ctx context.Context, block *entity.IndexedBlock) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO runes_indexed_blocks (height, hash, prev_hash, timestamp) VALUES ($1, $2, $3, $4)`,
		block.Height, block.Hash.String(), block.PrevHash.String(), block.Timestamp,
	)
	if err != nil {
		return errors.Wrap(err, "can't insert indexed block")
	}
	return nil
}

func (r *Repository) CreateRuneEntry(ctx context.Context, entry *runes.RuneEntry, blockHeight uint64) error {
	var terms runes.Terms
	if entry.Terms != nil {
		terms = *entry.Terms
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO runes_entries (rune_id, block_height, tx_idx, number, rune, spacers, divisibility, premine, symbol,
			terms, terms_amount, terms_cap, terms_height_start, terms_height_end, terms_offset_start, terms_offset_end,
			turbo, etching_block, etching_tx_hash, commitment_tx_hash, etched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		entry.RuneId.String(), int64(entry.RuneId.BlockHeight), int32(entry.RuneId.TxIndex),
		int64(entry.Number), entry.SpacedRune.Rune.String(), int64(entry.SpacedRune.Spacers),
		int16(entry.Divisibility), numericFromUint128(entry.Premine), int32(entry.Symbol),
		entry.Terms != nil, numericFromUint128Ptr(terms.Amount), numericFromUint128Ptr(terms.Cap),
		int8FromUint64Ptr(terms.HeightStart), int8FromUint64Ptr(terms.HeightEnd),
		int8FromUint64Ptr(terms.OffsetStart), int8FromUint64Ptr(terms.OffsetEnd),
		entry.Turbo, int64(entry.EtchingBlock), entry.EtchingTxHash.String(),
		textFromHashPtr(entry.CommitmentTxHash), entry.EtchedAt,
	)
	if err != nil {
		return errors.Wrap(err, "can't insert rune entry")
	}
	return r.CreateRuneEntryState(ctx, entry, blockHeight)
}

func (r *Repository) CreateRuneEntryState(ctx context.Context, entry *runes.RuneEntry, blockHeight uint64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO runes_entry_states (rune_id, block_height, mints, burned_amount, completed_at, completed_at_height)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.RuneId.String(), int64(blockHeight),
		numericFromUint128(entry.Mints), numericFromUint128(entry.BurnedAmount),
		timestamptzFromTimePtr(entry.CompletedAt), int8FromUint64Ptr(entry.CompletedAtHeight),
	)
	if err != nil {
		return errors.Wrap(err, "can't insert rune entry state")
	}
	return nil
}

func (r *Repository) CreateOutPointBalances(ctx context.Context, balances []*entity.OutPointBalance) error {
	for _, balance := range balances {
		_, err := r.db.Exec(ctx,
			`INSERT INTO runes_outpoint_balances (rune_id, tx_hash, tx_idx, amount, block_height)
			VALUES ($1, $2, $3, $4, $5)`,
			balance.RuneId.String(), balance.OutPoint.Hash.String(), int32(balance.OutPoint.Index),
			numericFromUint128(balance.Amount), int64(balance.BlockHeight),
		)
		if err != nil {
			return errors.Wrap(err, "can't insert outpoint balance")
		}
	}
	return nil
}

func (r *Repository) SpendOutPointBalances(ctx context.Context, outPoint wire.OutPoint, blockHeight uint64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE runes_outpoint_balances SET spent_height = $3 WHERE tx_hash = $1 AND tx_idx = $2 AND spent_height IS NULL`,
		outPoint.Hash.String(), int32(outPoint.Index), int64(blockHeight),
	)
	if err != nil {
		return errors.Wrap(err, "can't spend outpoint balances")
	}
	return nil
}

func (r *Repository) CreateRuneTransaction(ctx context.Context, tx *entity.RuneTransaction) error {
	inputs, err := marshalOutPointBalances(tx.Inputs)
	if err != nil {
		return err
	}
	outputs, err := marshalOutPointBalances(tx.Outputs)
	if err != nil {
		return err
	}
	mints, err := marshalRuneAmounts(tx.Mints)
	if err != nil {
		return err
	}
	burns, err := marshalRuneAmounts(tx.Burns)
	if err != nil {
		return err
	}
	var runestoneData []byte
	if tx.Runestone != nil {
		runestoneData, err = json.Marshal(tx.Runestone)
		if err != nil {
			return errors.Wrap(err, "can't marshal runestone")
		}
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO runes_transactions (hash, block_height, idx, timestamp, inputs, outputs, mints, burns, runestone, rune_etched)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.Hash.String(), int64(tx.BlockHeight), int32(tx.Index), tx.Timestamp,
		inputs, outputs, mints, burns, runestoneData, tx.RuneEtched,
	)
	if err != nil {
		return errors.Wrap(err, "can't insert rune transaction")
	}
	return nil
}

func (r *Repository) DeleteIndexedBlocksSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM runes_indexed_blocks WHERE height >= $1`, int64(height))
	return errors.Wrap(err, "can't delete indexed blocks")
}

func (r *Repository) DeleteRuneEntriesSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM runes_entries WHERE etching_block >= $1`, int64(height))
	return errors.Wrap(err, "can't delete rune entries")
}

func (r *Repository) DeleteRuneEntryStatesSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM runes_entry_states WHERE block_height >= $1`, int64(height))
	return errors.Wrap(err, "can't delete rune entry states")
}

func (r *Repository) DeleteOutPointBalancesSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM runes_outpoint_balances WHERE block_height >= $1`, int64(height))
	return errors.Wrap(err, "can't delete outpoint balances")
}

func (r *Repository) UnspendOutPointBalancesSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `UPDATE runes_outpoint_balances SET spent_height = NULL WHERE spent_height >= $1`, int64(height))
	return errors.Wrap(err, "can't unspend outpoint balances")
}

func (r *Repository) DeleteRuneTransactionsSinceHeight(ctx context.Context, height uint64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM runes_transactions WHERE block_height >= $1`, int64(height))
	return errors.Wrap(err, "can't delete rune transactions")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
