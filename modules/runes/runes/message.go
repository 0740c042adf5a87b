package runes

import (
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/core/types"
	"github.com/samber/lo"
)

// Edict transfers an amount of a rune to a transaction output. Output equal
// to the number of outputs distributes the amount across all non-OP_RETURN
// outputs.
type Edict struct {
	Id     RuneId
	Amount uint128.Uint128
	Output int
}

// Message is the decoded tag/value structure of a runestone payload before
// field interpretation.
type Message struct {
	Fields Fields
	Edicts []Edict
	Flaws  Flaws
}

type Fields map[Tag][]uint128.Uint128

// Take removes and returns the first value of the tag, or nil if the tag is
// absent. Repeated tags accumulate values, consumed in order of appearance.
func (fields Fields) Take(tag Tag) *uint128.Uint128 {
	values, ok := fields[tag]
	if !ok {
		return nil
	}
	first := values[0]
	values = values[1:]
	if len(values) == 0 {
		delete(fields, tag)
	} else {
		fields[tag] = values
	}
	return &first
}

// MessageFromIntegers splits a decoded integer sequence into fields and
// edicts. All integers after TagBody are interpreted as groups of four
// delta-encoded edict values.
func MessageFromIntegers(tx *types.Transaction, payload []uint128.Uint128) Message {
	flaws := Flaws(0)
	var edicts []Edict
	fields := make(Fields)

	for i := 0; i < len(payload); i += 2 {
		tag := Tag(payload[i])

		if tag == TagBody {
			runeId := RuneId{}
			for _, chunk := range lo.Chunk(payload[i+1:], 4) {
				if len(chunk) != 4 {
					flaws |= FlawFlagTrailingIntegers.Mask()
					break
				}
				blockDelta, txIndexDelta, amount, output := chunk[0], chunk[1], chunk[2], chunk[3]
				if !blockDelta.IsUint64() || !txIndexDelta.IsUint32() {
					flaws |= FlawFlagEdictRuneId.Mask()
					break
				}
				if output.Cmp64(uint64(len(tx.TxOut))) > 0 {
					flaws |= FlawFlagEdictOutput.Mask()
					break
				}
				next, err := runeId.Next(blockDelta.Uint64(), txIndexDelta.Uint32())
				if err != nil {
					flaws |= FlawFlagEdictRuneId.Mask()
					break
				}
				runeId = next
				edicts = append(edicts, Edict{
					Id:     runeId,
					Amount: amount,
					Output: int(output.Uint64()),
				})
			}
			break
		}

		if i+1 >= len(payload) {
			flaws |= FlawFlagTruncatedField.Mask()
			break
		}
		fields[tag] = append(fields[tag], payload[i+1])
	}

	return Message{
		Flaws:  flaws,
		Edicts: edicts,
		Fields: fields,
	}
}
