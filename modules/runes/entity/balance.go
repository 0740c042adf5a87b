package entity

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
)

// OutPointBalance is the amount of a single rune held by an unspent
// transaction output. SpentHeight is nil while the output is unspent.
type OutPointBalance struct {
	RuneId      runes.RuneId
	OutPoint    wire.OutPoint
	Amount      uint128.Uint128
	BlockHeight uint64
	SpentHeight *uint64
}
