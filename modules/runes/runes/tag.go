package runes

import (
	"github.com/gaze-network/uint128"
)

// Tag identifies a field in a runestone message. Unrecognized odd tags are
// ignored, unrecognized even tags produce a cenotaph.
type Tag uint128.Uint128

func (t Tag) Uint128() uint128.Uint128 {
	return uint128.Uint128(t)
}

var (
	TagBody        = Tag(uint128.From64(0))
	TagFlags       = Tag(uint128.From64(2))
	TagRune        = Tag(uint128.From64(4))
	TagPremine     = Tag(uint128.From64(6))
	TagCap         = Tag(uint128.From64(8))
	TagAmount      = Tag(uint128.From64(10))
	TagHeightStart = Tag(uint128.From64(12))
	TagHeightEnd   = Tag(uint128.From64(14))
	TagOffsetStart = Tag(uint128.From64(16))
	TagOffsetEnd   = Tag(uint128.From64(18))
	TagMint        = Tag(uint128.From64(20))
	TagPointer     = Tag(uint128.From64(22))
	// TagCenotaph is unrecognized, reserved for producing cenotaphs in tests
	TagCenotaph = Tag(uint128.From64(126))

	TagDivisibility = Tag(uint128.From64(1))
	TagSpacers      = Tag(uint128.From64(3))
	TagSymbol       = Tag(uint128.From64(5))
	// TagNop is unrecognized and odd, so it is ignored
	TagNop = Tag(uint128.From64(127))
)

// IsEven reports whether an unrecognized occurrence of this tag makes the
// runestone a cenotaph.
func (t Tag) IsEven() bool {
	return t.Uint128().Mod64(2) == 0
}
