package store

import "errors"

var (
	ErrColumnNotFound = errors.New("store: column not found")
	ErrInvalidRange   = errors.New("store: start key sorts after end key")
	ErrInvalidFamily  = errors.New("store: column family name must not be empty")
	ErrEmptyRowKey    = errors.New("store: row key must not be empty")
	ErrInvalidLimit   = errors.New("store: range slice limit must be positive")
)
