package entity

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// IndexedBlock records a block the ledger has fully processed. The chain of
// hashes is used to detect reorgs and locate fork points.
type IndexedBlock struct {
	Height    int64
	Hash      chainhash.Hash
	PrevHash  chainhash.Hash
	Timestamp time.Time
}
