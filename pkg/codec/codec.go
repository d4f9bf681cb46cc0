// Package codec converts row keys, column names and column values between
// their stored byte form and typed Go values.
package codec

import (
	"errors"
	"fmt"
)

// Codec encodes and decodes one semantic type. Decode must reject malformed
// input with a *DecodeError.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

var ErrDecode = errors.New("codec: malformed input")

// DecodeError reports bytes a codec could not decode.
type DecodeError struct {
	Codec string
	Data  []byte
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec %s: cannot decode %d bytes", e.Codec, len(e.Data))
	}
	return fmt.Sprintf("codec %s: cannot decode %d bytes: %v", e.Codec, len(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeError(codec string, data []byte, err error) *DecodeError {
	return &DecodeError{Codec: codec, Data: data, Err: err}
}
