package runes

import (
	"math"
	"time"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/samber/lo"
)

// RuneEntry is the indexed state of an etched rune.
type RuneEntry struct {
	RuneId       RuneId
	Number       uint64
	Divisibility uint8
	// Premine is allocated to the etching transaction when the rune is etched
	Premine    uint128.Uint128
	SpacedRune SpacedRune
	Symbol     rune
	// Terms is nil for runes without an open mint
	Terms *Terms
	Turbo bool
	// Mints is the number of completed mint transactions
	Mints        uint128.Uint128
	BurnedAmount uint128.Uint128
	// CompletedAt is when the final allowed mint happened
	CompletedAt time.Time
	// CompletedAtHeight is the height of the final allowed mint
	CompletedAtHeight *uint64
	EtchingBlock      uint64
	EtchingTxHash     chainhash.Hash
	// CommitmentTxHash is the transaction whose tapscript committed to the
	// rune name. Nil for reserved runes and the genesis rune.
	CommitmentTxHash *chainhash.Hash
	EtchedAt         time.Time
}

var (
	ErrUnmintable      = errors.New("rune is not mintable")
	ErrMintCapReached  = errors.New("rune mint cap reached")
	ErrMintBeforeStart = errors.New("rune minting has not started")
	ErrMintAfterEnd    = errors.New("rune minting has ended")
)

// GetMintableAmount returns the amount a mint at the given height would
// produce, or an error describing why the mint is void.
func (e *RuneEntry) GetMintableAmount(height uint64) (uint128.Uint128, error) {
	if e.Terms == nil {
		return uint128.Uint128{}, ErrUnmintable
	}
	if !e.IsMintStarted(height) {
		return uint128.Uint128{}, ErrMintBeforeStart
	}
	if e.IsMintEnded(height) {
		return uint128.Uint128{}, ErrMintAfterEnd
	}
	var cap uint128.Uint128
	if e.Terms.Cap != nil {
		cap = *e.Terms.Cap
	}
	if e.Mints.Cmp(cap) >= 0 {
		return uint128.Uint128{}, ErrMintCapReached
	}
	var amount uint128.Uint128
	if e.Terms.Amount != nil {
		amount = *e.Terms.Amount
	}
	return amount, nil
}

// IsMintStarted reports whether the mint window is open at the given height.
// When both an absolute height and an offset are set, the later one wins.
func (e *RuneEntry) IsMintStarted(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64
	if e.Terms.OffsetStart != nil {
		relative = e.RuneId.BlockHeight + *e.Terms.OffsetStart
	}
	if e.Terms.HeightStart != nil {
		absolute = *e.Terms.HeightStart
	}

	return height >= max(relative, absolute)
}

// IsMintEnded reports whether the mint window has closed at the given height.
// When both an absolute height and an offset are set, the earlier one wins.
func (e *RuneEntry) IsMintEnded(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64 = math.MaxUint64, math.MaxUint64
	if e.Terms.OffsetEnd != nil {
		relative = e.RuneId.BlockHeight + *e.Terms.OffsetEnd
	}
	if e.Terms.HeightEnd != nil {
		absolute = *e.Terms.HeightEnd
	}

	return height >= min(relative, absolute)
}

// Supply returns the maximum amount of the rune that can ever exist.
func (e RuneEntry) Supply() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})

	amount := lo.FromPtr(terms.Amount)
	cap := lo.FromPtr(terms.Cap)

	result, overflow := amount.MulOverflow(cap)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	result, overflow = result.AddOverflow(e.Premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return result, nil
}

// MintedAmount returns premine + mints * amount.
func (e RuneEntry) MintedAmount() (uint128.Uint128, error) {
	var amount uint128.Uint128
	if e.Terms != nil {
		amount = lo.FromPtr(e.Terms.Amount)
	}
	minted, overflow := e.Mints.MulOverflow(amount)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	minted, overflow = minted.AddOverflow(e.Premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return minted, nil
}

// InCirculation returns minted minus burned.
func (e RuneEntry) InCirculation() (uint128.Uint128, error) {
	minted, err := e.MintedAmount()
	if err != nil {
		return uint128.Uint128{}, errors.WithStack(err)
	}
	return minted.Sub(e.BurnedAmount), nil
}
