package runes

// FlawFlag marks one reason a runestone was declared a cenotaph.
type FlawFlag int

const (
	FlawFlagEdictOutput FlawFlag = iota
	FlawFlagEdictRuneId
	FlawFlagInvalidScript
	FlawFlagOpCode
	FlawFlagSupplyOverflow
	FlawFlagTrailingIntegers
	FlawFlagTruncatedField
	FlawFlagUnrecognizedEvenTag
	FlawFlagUnrecognizedFlag
	FlawFlagVarInt
)

func (f FlawFlag) Mask() Flaws {
	return 1 << f
}

var flawMessages = map[FlawFlag]string{
	FlawFlagEdictOutput:         "edict output greater than transaction output count",
	FlawFlagEdictRuneId:         "invalid runeId in edict",
	FlawFlagInvalidScript:       "invalid script in OP_RETURN",
	FlawFlagOpCode:              "non-pushdata opcode in OP_RETURN",
	FlawFlagSupplyOverflow:      "supply overflows uint128",
	FlawFlagTrailingIntegers:    "trailing integers in body",
	FlawFlagTruncatedField:      "field with missing value",
	FlawFlagUnrecognizedEvenTag: "unrecognized even tag",
	FlawFlagUnrecognizedFlag:    "unrecognized field",
	FlawFlagVarInt:              "invalid varint",
}

func (f FlawFlag) String() string {
	return flawMessages[f]
}

// Flaws is a bitmask of FlawFlag.
type Flaws uint32

func (f Flaws) Collect() []FlawFlag {
	var flags []FlawFlag
	for flag := range flawMessages {
		if f&flag.Mask() != 0 {
			flags = append(flags, flag)
		}
	}
	return flags
}

func (f Flaws) CollectAsString() []string {
	flawFlags := f.Collect()
	messages := make([]string, 0, len(flawFlags))
	for _, flag := range flawFlags {
		messages = append(messages, flag.String())
	}
	return messages
}
