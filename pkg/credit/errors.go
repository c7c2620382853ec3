package credit

import "errors"

// Errors returned by the credit package.
var (
	// ErrInsufficientCredit is returned when an operation would take more
	// credit than the ledger holds.
	ErrInsufficientCredit = errors.New("credit: insufficient credit")

	// ErrOverflow is returned when adding credit would exceed 2^32-1.
	ErrOverflow = errors.New("credit: overflow")
)
