package runes

import (
	"slices"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/runixlabs/runes-indexer/pkg/leb128"
	"github.com/samber/lo"
)

const (
	// RUNESTONE_PAYLOAD_MAGIC_NUMBER follows OP_RETURN in a runestone output.
	RUNESTONE_PAYLOAD_MAGIC_NUMBER = txscript.OP_13

	// RUNE_COMMIT_BLOCKS is the number of confirmations the name commitment
	// input must have before the etching is valid.
	RUNE_COMMIT_BLOCKS = 6
)

type Runestone struct {
	// Etching is the rune etched in this transaction, if any
	Etching *Etching
	// Mint is the rune id to mint in this transaction, if any
	Mint *RuneId
	// Pointer is the output receiving unallocated runes. If nil, the first
	// non-OP_RETURN output is used. An OP_RETURN target burns the runes.
	Pointer *uint64
	// Edicts are executed in order against the transaction outputs
	Edicts []Edict
	// Cenotaph marks a malformed runestone. Inputs to a cenotaph are burned
	// and a rune etched in a cenotaph is unmintable.
	Cenotaph bool
	// Flaws is the bitmask of reasons the runestone is a cenotaph
	Flaws Flaws
}

// DecipherRunestone extracts and decodes a runestone from the transaction.
// Malformed runestones are returned with Cenotaph set and Flaws populated.
// Returns nil if the transaction has no runestone output at all.
func DecipherRunestone(tx *types.Transaction) (*Runestone, error) {
	payload, flaws := runestonePayloadFromTx(tx)
	if flaws != 0 {
		return &Runestone{
			Cenotaph: true,
			Flaws:    flaws,
		}, nil
	}
	if payload == nil {
		return nil, nil
	}

	integers, err := decodeVarInts(payload)
	if err != nil {
		flaws |= FlawFlagVarInt.Mask()
		return &Runestone{
			Cenotaph: true,
			Flaws:    flaws,
		}, nil
	}
	message := MessageFromIntegers(tx, integers)
	edicts, fields := message.Edicts, message.Fields
	flaws |= message.Flaws

	flags := NewFlags(lo.FromPtr(fields.Take(TagFlags)))

	var etching *Etching
	if flags.Take(FlagEtching) {
		divisibilityU128 := fields.Take(TagDivisibility)
		if divisibilityU128 != nil && divisibilityU128.Cmp64(uint64(maxDivisibility)) > 0 {
			divisibilityU128 = nil
		}
		spacersU128 := fields.Take(TagSpacers)
		if spacersU128 != nil && spacersU128.Cmp64(uint64(maxSpacers)) > 0 {
			spacersU128 = nil
		}
		symbolU128 := fields.Take(TagSymbol)
		if symbolU128 != nil && symbolU128.Cmp64(utf8.MaxRune) > 0 {
			symbolU128 = nil
		}

		var terms *Terms
		if flags.Take(FlagTerms) {
			var heightStart, heightEnd, offsetStart, offsetEnd *uint64
			if value := fields.Take(TagHeightStart); value != nil && value.IsUint64() {
				heightStart = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagHeightEnd); value != nil && value.IsUint64() {
				heightEnd = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagOffsetStart); value != nil && value.IsUint64() {
				offsetStart = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagOffsetEnd); value != nil && value.IsUint64() {
				offsetEnd = lo.ToPtr(value.Uint64())
			}
			terms = &Terms{
				Amount:      fields.Take(TagAmount),
				Cap:         fields.Take(TagCap),
				HeightStart: heightStart,
				HeightEnd:   heightEnd,
				OffsetStart: offsetStart,
				OffsetEnd:   offsetEnd,
			}
		}

		var divisibility *uint8
		if divisibilityU128 != nil {
			divisibility = lo.ToPtr(divisibilityU128.Uint8())
		}
		var spacers *uint32
		if spacersU128 != nil {
			spacers = lo.ToPtr(spacersU128.Uint32())
		}
		var symbol *rune
		if symbolU128 != nil {
			symbol = lo.ToPtr(rune(symbolU128.Uint32()))
		}

		etching = &Etching{
			Divisibility: divisibility,
			Premine:      fields.Take(TagPremine),
			Rune:         (*Rune)(fields.Take(TagRune)),
			Spacers:      spacers,
			Symbol:       symbol,
			Terms:        terms,
			Turbo:        flags.Take(FlagTurbo),
		}
	}

	var mint *RuneId
	if len(fields[TagMint]) >= 2 {
		mintBlock := lo.FromPtr(fields.Take(TagMint))
		mintTxIndex := lo.FromPtr(fields.Take(TagMint))
		if mintBlock.IsUint64() && mintTxIndex.IsUint32() {
			runeId, err := NewRuneId(mintBlock.Uint64(), mintTxIndex.Uint32())
			if err != nil {
				flaws |= FlawFlagUnrecognizedEvenTag.Mask()
			} else {
				mint = &runeId
			}
		}
	}
	var pointer *uint64
	if pointerU128 := fields.Take(TagPointer); pointerU128 != nil {
		if pointerU128.Cmp64(uint64(len(tx.TxOut))) < 0 {
			pointer = lo.ToPtr(pointerU128.Uint64())
		} else {
			flaws |= FlawFlagUnrecognizedEvenTag.Mask()
		}
	}

	if etching != nil {
		if _, err := etching.Supply(); err != nil {
			if errors.Is(err, errs.OverflowUint128) {
				flaws |= FlawFlagSupplyOverflow.Mask()
			} else {
				return nil, errors.Wrap(err, "cannot calculate supply")
			}
		}
	}

	if !flags.Uint128().IsZero() {
		flaws |= FlawFlagUnrecognizedFlag.Mask()
	}
	leftoverEvenTags := lo.Filter(lo.Keys(fields), func(tag Tag, _ int) bool {
		return tag.IsEven()
	})
	if len(leftoverEvenTags) != 0 {
		flaws |= FlawFlagUnrecognizedEvenTag.Mask()
	}
	if flaws != 0 {
		// a cenotaph keeps the etched name so it can still be recorded as
		// permanently unmintable
		var cenotaphEtching *Etching
		if etching != nil && etching.Rune != nil {
			cenotaphEtching = &Etching{
				Rune: etching.Rune,
			}
		}
		return &Runestone{
			Cenotaph: true,
			Flaws:    flaws,
			Mint:     mint,
			Etching:  cenotaphEtching,
		}, nil
	}

	return &Runestone{
		Etching: etching,
		Mint:    mint,
		Edicts:  edicts,
		Pointer: pointer,
	}, nil
}

// Encipher encodes the runestone into an OP_RETURN scriptPubKey.
func (r Runestone) Encipher() ([]byte, error) {
	var payload []byte

	encode := func(value uint128.Uint128) {
		payload = append(payload, leb128.EncodeUint128(value)...)
	}
	encodeTagValues := func(tag Tag, values ...uint128.Uint128) {
		for _, value := range values {
			encode(tag.Uint128())
			encode(value)
		}
	}

	if r.Etching != nil {
		etching := r.Etching
		flags := Flags(uint128.Zero)
		flags.Set(FlagEtching)
		if etching.Terms != nil {
			flags.Set(FlagTerms)
		}
		if etching.Turbo {
			flags.Set(FlagTurbo)
		}
		encodeTagValues(TagFlags, flags.Uint128())

		if etching.Rune != nil {
			encodeTagValues(TagRune, etching.Rune.Uint128())
		}
		if etching.Divisibility != nil {
			encodeTagValues(TagDivisibility, uint128.From64(uint64(*etching.Divisibility)))
		}
		if etching.Spacers != nil {
			encodeTagValues(TagSpacers, uint128.From64(uint64(*etching.Spacers)))
		}
		if etching.Symbol != nil {
			encodeTagValues(TagSymbol, uint128.From64(uint64(*etching.Symbol)))
		}
		if etching.Premine != nil {
			encodeTagValues(TagPremine, *etching.Premine)
		}
		if terms := etching.Terms; terms != nil {
			if terms.Amount != nil {
				encodeTagValues(TagAmount, *terms.Amount)
			}
			if terms.Cap != nil {
				encodeTagValues(TagCap, *terms.Cap)
			}
			if terms.HeightStart != nil {
				encodeTagValues(TagHeightStart, uint128.From64(*terms.HeightStart))
			}
			if terms.HeightEnd != nil {
				encodeTagValues(TagHeightEnd, uint128.From64(*terms.HeightEnd))
			}
			if terms.OffsetStart != nil {
				encodeTagValues(TagOffsetStart, uint128.From64(*terms.OffsetStart))
			}
			if terms.OffsetEnd != nil {
				encodeTagValues(TagOffsetEnd, uint128.From64(*terms.OffsetEnd))
			}
		}
	}

	if r.Mint != nil {
		encodeTagValues(TagMint, uint128.From64(r.Mint.BlockHeight), uint128.From64(uint64(r.Mint.TxIndex)))
	}
	if r.Pointer != nil {
		encodeTagValues(TagPointer, uint128.From64(*r.Pointer))
	}
	if len(r.Edicts) > 0 {
		encode(TagBody.Uint128())
		edicts := make([]Edict, len(r.Edicts))
		copy(edicts, r.Edicts)
		slices.SortFunc(edicts, func(i, j Edict) int {
			if i.Id.BlockHeight != j.Id.BlockHeight {
				return int(i.Id.BlockHeight) - int(j.Id.BlockHeight)
			}
			return int(i.Id.TxIndex) - int(j.Id.TxIndex)
		})
		var previousRuneId RuneId
		for _, edict := range edicts {
			blockDelta, txIndexDelta := previousRuneId.Delta(edict.Id)
			encode(uint128.From64(blockDelta))
			encode(uint128.From64(uint64(txIndexDelta)))
			encode(edict.Amount)
			encode(uint128.From64(uint64(edict.Output)))
			previousRuneId = edict.Id
		}
	}

	sb := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(RUNESTONE_PAYLOAD_MAGIC_NUMBER)

	for _, chunk := range lo.Chunk(payload, txscript.MaxScriptElementSize) {
		sb.AddData(chunk)
	}

	scriptPubKey, err := sb.Script()
	if err != nil {
		return nil, errors.Wrap(err, "cannot build scriptPubKey")
	}
	return scriptPubKey, nil
}

// runestonePayloadFromTx finds the first output starting with
// OP_RETURN OP_13 and concatenates its remaining data pushes. Errors after
// the output is selected are flaws, not a reason to keep searching.
func runestonePayloadFromTx(tx *types.Transaction) ([]byte, Flaws) {
	for _, output := range tx.TxOut {
		tokenizer := txscript.MakeScriptTokenizer(0, output.PkScript)

		if ok := tokenizer.Next(); !ok || tokenizer.Err() != nil {
			continue
		}
		if tokenizer.Opcode() != txscript.OP_RETURN {
			continue
		}

		if ok := tokenizer.Next(); !ok || tokenizer.Err() != nil {
			continue
		}
		if tokenizer.Opcode() != RUNESTONE_PAYLOAD_MAGIC_NUMBER {
			continue
		}

		payload := make([]byte, 0)
		for tokenizer.Next() {
			if tokenizer.Err() != nil {
				return nil, FlawFlagInvalidScript.Mask()
			}
			if !isDataPushOpCode(tokenizer.Opcode()) {
				return nil, FlawFlagOpCode.Mask()
			}
			payload = append(payload, tokenizer.Data()...)
		}
		if tokenizer.Err() != nil {
			return nil, FlawFlagInvalidScript.Mask()
		}

		return payload, Flaws(0)
	}

	return nil, 0
}

func decodeVarInts(payload []byte) ([]uint128.Uint128, error) {
	integers := make([]uint128.Uint128, 0)
	i := 0
	for i < len(payload) {
		n, length, err := leb128.DecodeUint128(payload[i:])
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode LEB128 varint")
		}
		integers = append(integers, n)
		i += length
	}
	return integers, nil
}

func isDataPushOpCode(opCode byte) bool {
	// OP_0, OP_DATA_1 to OP_DATA_75, OP_PUSHDATA1, OP_PUSHDATA2, OP_PUSHDATA4
	return opCode <= txscript.OP_PUSHDATA4
}
