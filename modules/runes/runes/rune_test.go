package runes

import (
	"fmt"
	"testing"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/gaze-network/uint128"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/stretchr/testify/assert"
)

func TestRuneString(t *testing.T) {
	test := func(rune Rune, encoded string) {
		t.Run(encoded, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, encoded, rune.String())

			actual, err := NewRuneFromString(encoded)
			assert.NoError(t, err)
			assert.Equal(t, rune, actual)
		})
	}

	test(NewRune(0), "A")
	test(NewRune(1), "B")
	test(NewRune(25), "Z")
	test(NewRune(26), "AA")
	test(NewRune(27), "AB")
	test(NewRune(51), "AZ")
	test(NewRune(52), "BA")
	test(NewRuneFromUint128(utils.Must(uint128.FromString("2055900680524219742"))), "UNCOMMONGOODS")
	test(NewRuneFromUint128(uint128.Max.Sub64(2)), "BCGDENLQRQWDSLRUGSNLBTMFIJAT")
	test(NewRuneFromUint128(uint128.Max.Sub64(1)), "BCGDENLQRQWDSLRUGSNLBTMFIJAU")
	test(NewRuneFromUint128(uint128.Max), "BCGDENLQRQWDSLRUGSNLBTMFIJAV")
}

func TestNewRuneFromStringError(t *testing.T) {
	_, err := NewRuneFromString("?")
	assert.ErrorIs(t, err, ErrInvalidBase26)

	_, err = NewRuneFromString("ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.Error(t, err)
}

func TestFirstRuneHeight(t *testing.T) {
	assert.Equal(t, uint64(840_000), FirstRuneHeight(common.NetworkMainnet))
	assert.Equal(t, uint64(2_520_000), FirstRuneHeight(common.NetworkTestnet))
}

func TestMinimumRuneAtHeight(t *testing.T) {
	test := func(height uint64, encoded string) {
		t.Run(fmt.Sprintf("%d", height), func(t *testing.T) {
			t.Parallel()
			expected, err := NewRuneFromString(encoded)
			assert.NoError(t, err)
			assert.Equal(t, expected, MinimumRuneAtHeight(common.NetworkMainnet, height))
		})
	}

	start := FirstRuneHeight(common.NetworkMainnet)
	end := start + common.HalvingInterval
	interval := uint64(common.HalvingInterval / 12)

	test(0, "AAAAAAAAAAAAA")
	test(start/2, "AAAAAAAAAAAAA")
	test(start, "ZZYZXBRKWXVA")
	test(start+1, "ZZXZUDIVTVQA")
	test(end-1, "A")
	test(end, "A")
	test(end+1, "A")

	test(start+interval*1-1, "AAAAAAAAAAAA")
	test(start+interval*1, "ZZYZXBRKWXV")
	test(start+interval*1+1, "ZZXZUDIVTVQ")
	test(start+interval*2-1, "AAAAAAAAAAA")
	test(start+interval*2, "ZZYZXBRKWY")
}

func TestIsReserved(t *testing.T) {
	reservedName, err := NewRuneFromString("AAAAAAAAAAAAAAAAAAAAAAAAAAA")
	assert.NoError(t, err)
	assert.True(t, reservedName.IsReserved())
	assert.False(t, NewRuneFromUint128(reservedName.Uint128().Sub64(1)).IsReserved())
}

func TestGetReservedRune(t *testing.T) {
	test := func(blockHeight uint64, txIndex uint32) {
		t.Run(fmt.Sprintf("%d:%d", blockHeight, txIndex), func(t *testing.T) {
			t.Parallel()
			rune := GetReservedRune(blockHeight, txIndex)
			expected := firstReservedRune.Uint128().
				Add(uint128.From64(blockHeight).Lsh(32).Or64(uint64(txIndex)))
			assert.Equal(t, expected, rune.Uint128())
			assert.True(t, rune.IsReserved())
		})
	}

	test(0, 0)
	test(0, 1)
	test(840000, 6)
	test(1<<40, 1<<31)
}

func TestCommitment(t *testing.T) {
	assert.Empty(t, NewRune(0).Commitment())
	assert.Equal(t, []byte{1}, NewRune(1).Commitment())
	assert.Equal(t, []byte{0x00, 0x01}, NewRune(256).Commitment())
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, NewRuneFromUint128(uint128.New(^uint64(0), 1)).Commitment())
}
