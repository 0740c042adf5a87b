package runes

import (
	"math/big"
	"slices"
	"strings"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/common/errs"
)

// Rune is a rune name, represented as a modified base-26 integer.
type Rune uint128.Uint128

func NewRune(value uint64) Rune {
	return Rune(uint128.From64(value))
}

func NewRuneFromUint128(value uint128.Uint128) Rune {
	return Rune(value)
}

func (r Rune) Uint128() uint128.Uint128 {
	return uint128.Uint128(r)
}

var ErrInvalidBase26 = errs.ErrorKind("invalid base-26 character: must be in the range [A-Z]")

// NewRuneFromString parses a modified base-26 name such as "UNCOMMONGOODS".
// Names that do not fit in 128 bits return errs.OverflowUint128.
func NewRuneFromString(value string) (Rune, error) {
	x := new(big.Int)
	base := big.NewInt(26)
	for i, char := range value {
		if char < 'A' || char > 'Z' {
			return Rune{}, errors.WithStack(ErrInvalidBase26)
		}
		if i > 0 {
			x.Add(x, big.NewInt(1))
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(char-'A')))
	}
	u128, err := uint128.FromBig(x)
	if err != nil {
		return Rune{}, errors.Join(err, errs.OverflowUint128)
	}
	return Rune(u128), nil
}

// String encodes the rune back to its modified base-26 name.
func (r Rune) String() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	if r.Uint128().Equals(uint128.Max) {
		return "BCGDENLQRQWDSLRUGSNLBTMFIJAV"
	}
	value := r.Uint128().Add64(1)
	var sb strings.Builder
	for !value.IsZero() {
		idx := value.Sub64(1).Mod64(26)
		sb.WriteByte(chars[idx])
		value = value.Sub64(1).Div64(26)
	}
	encoded := []byte(sb.String())
	slices.Reverse(encoded)
	return string(encoded)
}

// firstReservedRune is the lowest rune value allocated automatically when an
// etching omits a name.
var firstReservedRune = Rune(utils.Must(uint128.FromString("6402364363415443603228541259936211926")))

// unlockSteps[n] is the lowest rune unlocked when n characters of name length
// remain locked. unlockSteps[0] is "A", unlockSteps[12] is 13 As.
var unlockSteps = []uint128.Uint128{
	utils.Must(uint128.FromString("0")),
	utils.Must(uint128.FromString("26")),
	utils.Must(uint128.FromString("702")),
	utils.Must(uint128.FromString("18278")),
	utils.Must(uint128.FromString("475254")),
	utils.Must(uint128.FromString("12356630")),
	utils.Must(uint128.FromString("321272406")),
	utils.Must(uint128.FromString("8353082582")),
	utils.Must(uint128.FromString("217180147158")),
	utils.Must(uint128.FromString("5646683826134")),
	utils.Must(uint128.FromString("146813779479510")),
	utils.Must(uint128.FromString("3817158266467286")),
	utils.Must(uint128.FromString("99246114928149462")),
	utils.Must(uint128.FromString("2580398988131886038")),
	utils.Must(uint128.FromString("67090373691429037014")),
	utils.Must(uint128.FromString("1744349715977154962390")),
	utils.Must(uint128.FromString("45353092615406029022166")),
	utils.Must(uint128.FromString("1179180408000556754576342")),
	utils.Must(uint128.FromString("30658690608014475618984918")),
	utils.Must(uint128.FromString("797125955808376366093607894")),
	utils.Must(uint128.FromString("20725274851017785518433805270")),
	utils.Must(uint128.FromString("538857146126462423479278937046")),
	utils.Must(uint128.FromString("14010285799288023010461252363222")),
	utils.Must(uint128.FromString("364267430781488598271992561443798")),
	utils.Must(uint128.FromString("9470953200318703555071806597538774")),
	utils.Must(uint128.FromString("246244783208286292431866971536008150")),
	utils.Must(uint128.FromString("6402364363415443603228541259936211926")),
	utils.Must(uint128.FromString("166461473448801533683942072758341510102")),
}

func (r Rune) Cmp(other Rune) int {
	return uint128.Uint128(r).Cmp(uint128.Uint128(other))
}

func (r Rune) IsReserved() bool {
	return r.Uint128().Cmp(firstReservedRune.Uint128()) >= 0
}

// Commitment returns the little-endian encoding of the rune with trailing
// zero bytes trimmed. An etching transaction must commit to this value in a
// taproot input.
func (r Rune) Commitment() []byte {
	bytes := r.Uint128().Big().Bytes()
	slices.Reverse(bytes)
	return bytes
}

// GetReservedRune derives the reserved rune allocated to a nameless etching
// at the given block height and tx index.
func GetReservedRune(blockHeight uint64, txIndex uint32) Rune {
	increment := uint128.From64(blockHeight).Lsh(32).Or64(uint64(txIndex))
	return Rune(firstReservedRune.Uint128().Add(increment))
}

// FirstRuneHeight returns the rune activation height for the network.
func FirstRuneHeight(network common.Network) uint64 {
	switch network {
	case common.NetworkMainnet:
		return common.HalvingInterval * 4
	case common.NetworkTestnet:
		return common.HalvingInterval * 12
	}
	panic("invalid network")
}

// MinimumRuneAtHeight returns the lowest rune name allowed to be etched at
// the given height. Names are unlocked gradually, one character length per
// 1/12th of a halving interval, starting at the activation height.
func MinimumRuneAtHeight(network common.Network, height uint64) Rune {
	offset := height + 1
	interval := uint64(common.HalvingInterval / 12)

	start := FirstRuneHeight(network)
	end := start + common.HalvingInterval

	if offset < start {
		return Rune(unlockSteps[12])
	}
	if offset >= end {
		return Rune(unlockSteps[0])
	}
	progress := offset - start
	length := 12 - progress/interval

	startRune := unlockSteps[length]
	endRune := unlockSteps[length-1] // length > 0 because offset < end
	remainder := progress % interval

	// interpolate between the two steps
	runeRange := startRune.Sub(endRune)
	delta := runeRange.Mul64(remainder).Div64(interval)
	return Rune(startRune.Sub(delta))
}
