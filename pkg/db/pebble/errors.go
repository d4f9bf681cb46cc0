package pebble

import "github.com/eigerco/widescan/pkg/db"

var (
	ErrClosed          = db.ErrClosed
	ErrNotFound        = db.ErrNotFound
	ErrBatchDone       = db.ErrBatchDone
	ErrIteratorInvalid = db.ErrIteratorInvalid
)

const (
	ErrInIteratorCreation = "pebble: create iterator: %w"
	ErrIteratorValue      = "pebble: read iterator value: %w"
)
