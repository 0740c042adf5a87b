package runes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpacedRuneString(t *testing.T) {
	test := func(input string, expected string) {
		t.Run(input, func(t *testing.T) {
			spacedRune, err := NewSpacedRuneFromString(input)
			require.NoError(t, err)
			assert.Equal(t, expected, spacedRune.String())
		})
	}

	test("UNCOMMONGOODS", "UNCOMMONGOODS")
	test("UNCOMMON•GOODS", "UNCOMMON•GOODS")
	test("UNCOMMON.GOODS", "UNCOMMON•GOODS")
	test("U•N•C•O•M•M•O•N•G•O•O•D•S", "U•N•C•O•M•M•O•N•G•O•O•D•S")
	test("A", "A")
}

func TestSpacedRuneErrors(t *testing.T) {
	_, err := NewSpacedRuneFromString("•ABC")
	assert.ErrorIs(t, err, ErrLeadingSpacer)

	_, err = NewSpacedRuneFromString("ABC•")
	assert.ErrorIs(t, err, ErrTrailingSpacer)

	_, err = NewSpacedRuneFromString("AB••C")
	assert.ErrorIs(t, err, ErrDoubleSpacer)

	_, err = NewSpacedRuneFromString("AB C")
	assert.ErrorIs(t, err, ErrInvalidSpacedRuneCharacter)
}

func TestSpacedRuneSpacersBitmap(t *testing.T) {
	spacedRune, err := NewSpacedRuneFromString("A•B•C")
	require.NoError(t, err)
	assert.Equal(t, uint32(0b11), spacedRune.Spacers)

	rune, err := NewRuneFromString("ABC")
	require.NoError(t, err)
	assert.Equal(t, rune, spacedRune.Rune)
}
