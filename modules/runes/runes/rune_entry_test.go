package runes

import (
	"testing"

	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMintableAmount(t *testing.T) {
	newEntry := func(terms *Terms, mints uint64) *RuneEntry {
		return &RuneEntry{
			RuneId: RuneId{BlockHeight: 840000, TxIndex: 6},
			Terms:  terms,
			Mints:  uint128.From64(mints),
		}
	}

	t.Run("no_terms", func(t *testing.T) {
		_, err := newEntry(nil, 0).GetMintableAmount(840001)
		assert.ErrorIs(t, err, ErrUnmintable)
	})
	t.Run("mintable", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount: lo.ToPtr(uint128.From64(100)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		}, 9)
		amount, err := entry.GetMintableAmount(840001)
		require.NoError(t, err)
		assert.Equal(t, uint128.From64(100), amount)
	})
	t.Run("cap_reached", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount: lo.ToPtr(uint128.From64(100)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		}, 10)
		_, err := entry.GetMintableAmount(840001)
		assert.ErrorIs(t, err, ErrMintCapReached)
	})
	t.Run("before_height_start", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount:      lo.ToPtr(uint128.From64(100)),
			Cap:         lo.ToPtr(uint128.From64(10)),
			HeightStart: lo.ToPtr(uint64(850000)),
		}, 0)
		_, err := entry.GetMintableAmount(849999)
		assert.ErrorIs(t, err, ErrMintBeforeStart)

		_, err = entry.GetMintableAmount(850000)
		assert.NoError(t, err)
	})
	t.Run("after_height_end", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount:    lo.ToPtr(uint128.From64(100)),
			Cap:       lo.ToPtr(uint128.From64(10)),
			HeightEnd: lo.ToPtr(uint64(850000)),
		}, 0)
		_, err := entry.GetMintableAmount(850000)
		assert.ErrorIs(t, err, ErrMintAfterEnd)

		_, err = entry.GetMintableAmount(849999)
		assert.NoError(t, err)
	})
	t.Run("offset_start_later_than_height_start_wins", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount:      lo.ToPtr(uint128.From64(100)),
			Cap:         lo.ToPtr(uint128.From64(10)),
			HeightStart: lo.ToPtr(uint64(840001)),
			OffsetStart: lo.ToPtr(uint64(10)),
		}, 0)
		_, err := entry.GetMintableAmount(840009)
		assert.ErrorIs(t, err, ErrMintBeforeStart)

		_, err = entry.GetMintableAmount(840010)
		assert.NoError(t, err)
	})
	t.Run("offset_end_earlier_than_height_end_wins", func(t *testing.T) {
		entry := newEntry(&Terms{
			Amount:    lo.ToPtr(uint128.From64(100)),
			Cap:       lo.ToPtr(uint128.From64(10)),
			HeightEnd: lo.ToPtr(uint64(900000)),
			OffsetEnd: lo.ToPtr(uint64(10)),
		}, 0)
		_, err := entry.GetMintableAmount(840010)
		assert.ErrorIs(t, err, ErrMintAfterEnd)

		_, err = entry.GetMintableAmount(840009)
		assert.NoError(t, err)
	})
}

func TestRuneEntrySupply(t *testing.T) {
	entry := RuneEntry{
		Premine: uint128.From64(1000),
		Terms: &Terms{
			Amount: lo.ToPtr(uint128.From64(100)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		},
	}
	supply, err := entry.Supply()
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(2000), supply)

	entry.Terms.Amount = lo.ToPtr(uint128.Max)
	_, err = entry.Supply()
	assert.Error(t, err)
}

func TestRuneEntryMintedAmount(t *testing.T) {
	entry := RuneEntry{
		Premine: uint128.From64(1000),
		Mints:   uint128.From64(3),
		Terms: &Terms{
			Amount: lo.ToPtr(uint128.From64(100)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		},
	}
	minted, err := entry.MintedAmount()
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1300), minted)
}

func TestRuneEntryInCirculation(t *testing.T) {
	entry := RuneEntry{
		Premine:      uint128.From64(1000),
		BurnedAmount: uint128.From64(250),
	}
	inCirculation, err := entry.InCirculation()
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(750), inCirculation)
}
