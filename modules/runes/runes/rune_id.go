package runes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// RuneId identifies an etched rune by the block height and tx index of its
// etching transaction.
type RuneId struct {
	BlockHeight uint64
	TxIndex     uint32
}

var ErrRuneIdZeroBlockNonZeroTxIndex = errors.New("rune id cannot be zero block height and non-zero tx index")

func NewRuneId(blockHeight uint64, txIndex uint32) (RuneId, error) {
	if blockHeight == 0 && txIndex != 0 {
		return RuneId{}, errors.WithStack(ErrRuneIdZeroBlockNonZeroTxIndex)
	}
	return RuneId{
		BlockHeight: blockHeight,
		TxIndex:     txIndex,
	}, nil
}

var (
	ErrInvalidSeparator       = errors.New("invalid rune id: must contain exactly one separator")
	ErrCannotParseBlockHeight = errors.New("invalid rune id: cannot parse block height")
	ErrCannotParseTxIndex     = errors.New("invalid rune id: cannot parse tx index")
)

// NewRuneIdFromString parses a rune id in "blockHeight:txIndex" form.
func NewRuneIdFromString(str string) (RuneId, error) {
	parts := strings.Split(str, ":")
	if len(parts) != 2 {
		return RuneId{}, ErrInvalidSeparator
	}
	blockHeight, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return RuneId{}, errors.WithStack(errors.Join(err, ErrCannotParseBlockHeight))
	}
	txIndex, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return RuneId{}, errors.WithStack(errors.Join(err, ErrCannotParseTxIndex))
	}
	return RuneId{
		BlockHeight: blockHeight,
		TxIndex:     uint32(txIndex),
	}, nil
}

func (r RuneId) String() string {
	return fmt.Sprintf("%d:%d", r.BlockHeight, r.TxIndex)
}

// Delta returns the delta encoding between this RuneId and next. Within the
// same block the tx index is delta encoded as well, across blocks the tx
// index of the next block is used as is.
func (r RuneId) Delta(next RuneId) (uint64, uint32) {
	blockDelta := next.BlockHeight - r.BlockHeight
	if blockDelta == 0 {
		return 0, next.TxIndex - r.TxIndex
	}
	return blockDelta, next.TxIndex
}

// Next applies a delta encoding produced by Delta.
func (r RuneId) Next(blockDelta uint64, txIndexDelta uint32) (RuneId, error) {
	if blockDelta == 0 {
		return NewRuneId(r.BlockHeight, r.TxIndex+txIndexDelta)
	}
	return NewRuneId(r.BlockHeight+blockDelta, txIndexDelta)
}

// MarshalJSON implements json.Marshaler
func (r RuneId) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (r *RuneId) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("must be string")
	}
	parsed, err := NewRuneIdFromString(string(data[1 : len(data)-1]))
	if err != nil {
		return errors.WithStack(err)
	}
	*r = parsed
	return nil
}
