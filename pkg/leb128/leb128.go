package leb128

import (
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common/errs"
)

const (
	ErrEmpty        = errs.ErrorKind("leb128: empty byte sequence")
	ErrUnterminated = errs.ErrorKind("leb128: unterminated byte sequence")
)

// EncodeUint128 encodes a uint128 as an unsigned LEB128 varint.
func EncodeUint128(input uint128.Uint128) []byte {
	bytes := make([]byte, 0)
	// for n >> 7 > 0
	for !input.Rsh(7).IsZero() {
		last7Bits := input.And64(0b0111_1111).Uint8()
		bytes = append(bytes, last7Bits|0b1000_0000)
		input = input.Rsh(7)
	}
	bytes = append(bytes, input.Uint8())
	return bytes
}

// DecodeUint128 decodes an unsigned LEB128 varint from the head of data,
// returning the value and the number of bytes consumed. Values that do not
// fit in 128 bits return errs.OverflowUint128.
func DecodeUint128(data []byte) (n uint128.Uint128, length int, err error) {
	if len(data) == 0 {
		return uint128.Uint128{}, 0, ErrEmpty
	}
	n = uint128.From64(0)

	for i, b := range data {
		if i > 18 {
			return uint128.Uint128{}, 0, errs.OverflowUint128
		}
		value := uint128.New(uint64(b&0b0111_1111), 0)
		// the 19th byte may only carry the two remaining bits of a uint128
		if i == 18 && !value.And64(0b0111_1100).IsZero() {
			return uint128.Uint128{}, 0, errs.OverflowUint128
		}
		n = n.Or(value.Lsh(uint(7 * i)))
		// if the high bit is not set, then this is the last byte
		if b&0b1000_0000 == 0 {
			return n, i + 1, nil
		}
	}
	return uint128.Uint128{}, 0, ErrUnterminated
}
