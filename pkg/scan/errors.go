package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a terminated cursor is advanced.
	ErrInvalidState = errors.New("scan: cursor already terminated")
	// ErrExhausted is returned by Walker.Next once every row has been read.
	ErrExhausted       = fmt.Errorf("%w: walker exhausted", ErrInvalidState)
	ErrInvalidPageSize = errors.New("scan: page size must be at least 1")
	// ErrKeyRegression means the transport broke its ordering contract and the
	// scan cannot make progress.
	ErrKeyRegression = errors.New("scan: range slice did not advance")
)
