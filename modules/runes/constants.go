package runes

import (
	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/core/types"
)

const (
	Version   = "v0.2.0"
	DBVersion = 1
)

// startingBlockHeader is the last block before rune activation on each
// network. Indexing starts at the following height.
var startingBlockHeader = map[common.Network]types.BlockHeader{
	common.NetworkMainnet: {
		Height: 839999,
		Hash:   *utils.Must(chainhash.NewHashFromStr("0000000000000000000172014ba58d66455762add0512355ad651207918494ab")),
	},
	common.NetworkTestnet: {
		Height: 2583200,
		Hash:   *utils.Must(chainhash.NewHashFromStr("000000000006c5f0dfcd9e0e81f27f97a87aef82087ffe69cd3c390325bb6541")),
	},
}
