package entity

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/modules/runes/runes"
)

// RuneTransaction is a transaction that moved, minted, etched or burned
// runes. Inputs and Outputs are the rune amounts consumed from and assigned
// to outpoints, in order of appearance.
type RuneTransaction struct {
	Hash        chainhash.Hash
	BlockHeight uint64
	Index       uint32
	Timestamp   time.Time
	Inputs      []*OutPointBalance
	Outputs     []*OutPointBalance
	Mints       map[runes.RuneId]uint128.Uint128
	Burns       map[runes.RuneId]uint128.Uint128
	Runestone   *runes.Runestone
	RuneEtched  bool
}
