package runes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuneIdString(t *testing.T) {
	runeId, err := NewRuneId(840000, 6)
	require.NoError(t, err)
	assert.Equal(t, "840000:6", runeId.String())

	parsed, err := NewRuneIdFromString("840000:6")
	require.NoError(t, err)
	assert.Equal(t, runeId, parsed)
}

func TestNewRuneIdFromStringError(t *testing.T) {
	_, err := NewRuneIdFromString("840000")
	assert.ErrorIs(t, err, ErrInvalidSeparator)

	_, err = NewRuneIdFromString("840000:6:1")
	assert.ErrorIs(t, err, ErrInvalidSeparator)

	_, err = NewRuneIdFromString("abc:6")
	assert.ErrorIs(t, err, ErrCannotParseBlockHeight)

	_, err = NewRuneIdFromString("840000:abc")
	assert.ErrorIs(t, err, ErrCannotParseTxIndex)

	_, err = NewRuneIdFromString("840000:4294967296")
	assert.ErrorIs(t, err, ErrCannotParseTxIndex)
}

func TestNewRuneIdZeroBlock(t *testing.T) {
	_, err := NewRuneId(0, 1)
	assert.ErrorIs(t, err, ErrRuneIdZeroBlockNonZeroTxIndex)

	_, err = NewRuneId(0, 0)
	assert.NoError(t, err)
}

func TestRuneIdDeltaRoundTrip(t *testing.T) {
	test := func(base, next RuneId) {
		blockDelta, txIndexDelta := base.Delta(next)
		actual, err := base.Next(blockDelta, txIndexDelta)
		require.NoError(t, err)
		assert.Equal(t, next, actual)
	}

	base := RuneId{BlockHeight: 840000, TxIndex: 6}
	test(base, RuneId{BlockHeight: 840000, TxIndex: 6})
	test(base, RuneId{BlockHeight: 840000, TxIndex: 100})
	test(base, RuneId{BlockHeight: 840001, TxIndex: 0})
	test(base, RuneId{BlockHeight: 900000, TxIndex: 3})
	test(RuneId{}, base)
}

func TestRuneIdJSON(t *testing.T) {
	runeId, err := NewRuneId(840000, 6)
	require.NoError(t, err)

	data, err := json.Marshal(runeId)
	require.NoError(t, err)
	assert.Equal(t, `"840000:6"`, string(data))

	var decoded RuneId
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, runeId, decoded)

	assert.Error(t, json.Unmarshal([]byte(`840000`), &decoded))
}
