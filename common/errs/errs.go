package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotFound is returned when a requested item is not found.
	NotFound        = ErrorKind("Not Found")
	InvalidArgument = ErrorKind("Invalid Argument")
	Unsupported     = ErrorKind("Unsupported")
	Timeout         = ErrorKind("Timeout")
	InternalError   = ErrorKind("Internal Error")
	ConflictSetting = ErrorKind("Conflict Setting")
	OverflowUint64  = ErrorKind("overflow uint64")
	OverflowUint128 = ErrorKind("overflow uint128")

	// ReorgTooDeep is returned when a chain reorganization extends past the
	// retained delta horizon. Recovery requires a full resync; it must never
	// be retried like a transient fault.
	ReorgTooDeep = ErrorKind("reorg beyond retention horizon")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
