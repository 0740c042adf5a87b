package runes

import (
	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common/errs"
	"github.com/samber/lo"
)

// Terms are the open mint terms of an etching. A rune without terms cannot be
// minted after etching.
type Terms struct {
	// Amount minted per mint transaction
	Amount *uint128.Uint128
	// Cap is the number of allowed mints
	Cap *uint128.Uint128
	// HeightStart is the absolute height at which minting opens
	HeightStart *uint64
	// HeightEnd is the absolute height at which minting closes
	HeightEnd *uint64
	// OffsetStart is the mint open height relative to the etching block
	OffsetStart *uint64
	// OffsetEnd is the mint close height relative to the etching block
	OffsetEnd *uint64
}

type Etching struct {
	// Divisibility is the number of decimals when displaying amounts
	Divisibility *uint8
	// Premine is allocated to the etching transaction itself
	Premine *uint128.Uint128
	// Rune name. If nil, a reserved name is allocated automatically.
	Rune *Rune
	// Spacers is the display spacer bitmap
	Spacers *uint32
	// Symbol is a single currency glyph
	Symbol *rune
	Terms  *Terms
	// Turbo opts in to future protocol changes
	Turbo bool
}

const (
	maxDivisibility uint8  = 38
	maxSpacers      uint32 = 0b00000111_11111111_11111111_11111111
)

// Supply returns premine + cap * amount, the maximum amount of the rune that
// can ever exist.
func (e Etching) Supply() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})

	amount := lo.FromPtr(terms.Amount)
	cap := lo.FromPtr(terms.Cap)
	premine := lo.FromPtr(e.Premine)

	result, overflow := amount.MulOverflow(cap)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	result, overflow = result.AddOverflow(premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return result, nil
}
