package postgres

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/runixlabs/runes-indexer/modules/runes/entity"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
	"github.com/samber/lo"
)

func numericFromUint128(value uint128.Uint128) pgtype.Numeric {
	return pgtype.Numeric{Int: value.Big(), Valid: true}
}

func numericFromUint128Ptr(value *uint128.Uint128) pgtype.Numeric {
	if value == nil {
		return pgtype.Numeric{}
	}
	return numericFromUint128(*value)
}

func uint128FromNumeric(value pgtype.Numeric) (uint128.Uint128, error) {
	if !value.Valid || value.Int == nil {
		return uint128.Uint128{}, nil
	}
	result := new(big.Int).Set(value.Int)
	if value.Exp > 0 {
		result.Mul(result, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(value.Exp)), nil))
	} else if value.Exp < 0 {
		return uint128.Uint128{}, errors.Newf("unexpected fractional numeric value %s", value.Int)
	}
	parsed, err := uint128.FromBig(result)
	if err != nil {
		return uint128.Uint128{}, errors.Wrap(err, "numeric value out of uint128 range")
	}
	return parsed, nil
}

func uint128PtrFromNumeric(value pgtype.Numeric) (*uint128.Uint128, error) {
	if !value.Valid {
		return nil, nil
	}
	parsed, err := uint128FromNumeric(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func int8FromUint64Ptr(value *uint64) pgtype.Int8 {
	if value == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(*value), Valid: true}
}

func uint64PtrFromInt8(value pgtype.Int8) *uint64 {
	if !value.Valid {
		return nil
	}
	return lo.ToPtr(uint64(value.Int64))
}

func textFromHashPtr(hash *chainhash.Hash) pgtype.Text {
	if hash == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: hash.String(), Valid: true}
}

func hashPtrFromText(value pgtype.Text) (*chainhash.Hash, error) {
	if !value.Valid {
		return nil, nil
	}
	hash, err := chainhash.NewHashFromStr(value.String)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hash %q", value.String)
	}
	return hash, nil
}

func timestamptzFromTimePtr(value time.Time) pgtype.Timestamptz {
	if value.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: value, Valid: true}
}

// runeEntryRow maps a rune entry joined with its latest state.
type runeEntryRow struct {
	RuneId            string
	Number            int64
	Rune              string
	Spacers           int64
	Divisibility      int16
	Premine           pgtype.Numeric
	Symbol            int32
	HasTerms          bool
	TermsAmount       pgtype.Numeric
	TermsCap          pgtype.Numeric
	TermsHeightStart  pgtype.Int8
	TermsHeightEnd    pgtype.Int8
	TermsOffsetStart  pgtype.Int8
	TermsOffsetEnd    pgtype.Int8
	Turbo             bool
	EtchingBlock      int64
	EtchingTxHash     string
	CommitmentTxHash  pgtype.Text
	EtchedAt          time.Time
	Mints             pgtype.Numeric
	BurnedAmount      pgtype.Numeric
	CompletedAt       pgtype.Timestamptz
	CompletedAtHeight pgtype.Int8
}

func (row runeEntryRow) toEntry() (*runes.RuneEntry, error) {
	runeId, err := runes.NewRuneIdFromString(row.RuneId)
	if err != nil {
		return nil, errors.Wrap(err, "invalid rune id in row")
	}
	name, err := runes.NewRuneFromString(row.Rune)
	if err != nil {
		return nil, errors.Wrap(err, "invalid rune name in row")
	}
	premine, err := uint128FromNumeric(row.Premine)
	if err != nil {
		return nil, errors.Wrap(err, "invalid premine")
	}
	mints, err := uint128FromNumeric(row.Mints)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mints")
	}
	burnedAmount, err := uint128FromNumeric(row.BurnedAmount)
	if err != nil {
		return nil, errors.Wrap(err, "invalid burned amount")
	}
	etchingTxHash, err := chainhash.NewHashFromStr(row.EtchingTxHash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid etching tx hash")
	}
	commitmentTxHash, err := hashPtrFromText(row.CommitmentTxHash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid commitment tx hash")
	}

	var terms *runes.Terms
	if row.HasTerms {
		amount, err := uint128PtrFromNumeric(row.TermsAmount)
		if err != nil {
			return nil, errors.Wrap(err, "invalid terms amount")
		}
		cap, err := uint128PtrFromNumeric(row.TermsCap)
		if err != nil {
			return nil, errors.Wrap(err, "invalid terms cap")
		}
		terms = &runes.Terms{
			Amount:      amount,
			Cap:         cap,
			HeightStart: uint64PtrFromInt8(row.TermsHeightStart),
			HeightEnd:   uint64PtrFromInt8(row.TermsHeightEnd),
			OffsetStart: uint64PtrFromInt8(row.TermsOffsetStart),
			OffsetEnd:   uint64PtrFromInt8(row.TermsOffsetEnd),
		}
	}

	entry := &runes.RuneEntry{
		RuneId:            runeId,
		Number:            uint64(row.Number),
		Divisibility:      uint8(row.Divisibility),
		Premine:           premine,
		SpacedRune:        runes.NewSpacedRune(name, uint32(row.Spacers)),
		Symbol:            rune(row.Symbol),
		Terms:             terms,
		Turbo:             row.Turbo,
		Mints:             mints,
		BurnedAmount:      burnedAmount,
		CompletedAtHeight: uint64PtrFromInt8(row.CompletedAtHeight),
		EtchingBlock:      uint64(row.EtchingBlock),
		EtchingTxHash:     *etchingTxHash,
		CommitmentTxHash:  commitmentTxHash,
		EtchedAt:          row.EtchedAt,
	}
	if row.CompletedAt.Valid {
		entry.CompletedAt = row.CompletedAt.Time
	}
	return entry, nil
}

// outPointBalanceJSON is the persisted form of a rune transaction's inputs
// and outputs.
type outPointBalanceJSON struct {
	RuneId string `json:"rune_id"`
	TxHash string `json:"tx_hash"`
	TxIdx  uint32 `json:"tx_idx"`
	Amount string `json:"amount"`
}

func marshalOutPointBalances(balances []*entity.OutPointBalance) ([]byte, error) {
	rows := lo.Map(balances, func(balance *entity.OutPointBalance, _ int) outPointBalanceJSON {
		return outPointBalanceJSON{
			RuneId: balance.RuneId.String(),
			TxHash: balance.OutPoint.Hash.String(),
			TxIdx:  balance.OutPoint.Index,
			Amount: balance.Amount.String(),
		}
	})
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "can't marshal outpoint balances")
	}
	return data, nil
}

func unmarshalOutPointBalances(data []byte) ([]*entity.OutPointBalance, error) {
	var rows []outPointBalanceJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "can't unmarshal outpoint balances")
	}
	balances := make([]*entity.OutPointBalance, 0, len(rows))
	for _, row := range rows {
		runeId, err := runes.NewRuneIdFromString(row.RuneId)
		if err != nil {
			return nil, errors.Wrap(err, "invalid rune id")
		}
		txHash, err := chainhash.NewHashFromStr(row.TxHash)
		if err != nil {
			return nil, errors.Wrap(err, "invalid tx hash")
		}
		amount, err := uint128.FromString(row.Amount)
		if err != nil {
			return nil, errors.Wrap(err, "invalid amount")
		}
		balances = append(balances, &entity.OutPointBalance{
			RuneId:   runeId,
			OutPoint: wire.OutPoint{Hash: *txHash, Index: row.TxIdx},
			Amount:   amount,
		})
	}
	return balances, nil
}

func marshalRuneAmounts(amounts map[runes.RuneId]uint128.Uint128) ([]byte, error) {
	rows := make(map[string]string, len(amounts))
	for runeId, amount := range amounts {
		rows[runeId.String()] = amount.String()
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "can't marshal rune amounts")
	}
	return data, nil
}

func unmarshalRuneAmounts(data []byte) (map[runes.RuneId]uint128.Uint128, error) {
	var rows map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "can't unmarshal rune amounts")
	}
	amounts := make(map[runes.RuneId]uint128.Uint128, len(rows))
	for key, value := range rows {
		runeId, err := runes.NewRuneIdFromString(key)
		if err != nil {
			return nil, errors.Wrap(err, "invalid rune id")
		}
		amount, err := uint128.FromString(value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid amount")
		}
		amounts[runeId] = amount
	}
	return amounts, nil
}
