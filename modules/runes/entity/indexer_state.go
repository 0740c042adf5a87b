package entity

import (
	"time"

	"github.com/runixlabs/runes-indexer/common"
)

// IndexerState pins the schema version and network an existing database was
// built with. A mismatch on startup is fatal.
type IndexerState struct {
	DBVersion int32
	Network   common.Network
	CreatedAt time.Time
}

// IndexerStats is reported by the status endpoint.
type IndexerStats struct {
	ClientVersion string
	Network       common.Network
}
