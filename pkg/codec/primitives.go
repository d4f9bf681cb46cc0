package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	Bytes  Codec[[]byte]    = BytesCodec{}
	String Codec[string]    = StringCodec{}
	Uint64 Codec[uint64]    = Uint64Codec{}
	Int64  Codec[int64]     = Int64Codec{}
	UUID   Codec[uuid.UUID] = UUIDCodec{}
	Time   Codec[time.Time] = TimeCodec{}
)

// BytesCodec passes bytes through unchanged.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return bytes.Clone(v), nil }

func (BytesCodec) Decode(data []byte) ([]byte, error) { return bytes.Clone(data), nil }

// StringCodec stores UTF-8 text.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) {
	if !utf8.ValidString(v) {
		return nil, fmt.Errorf("codec utf8: invalid string %q", v)
	}
	return []byte(v), nil
}

func (StringCodec) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", decodeError("utf8", data, nil)
	}
	return string(data), nil
}

// Uint64Codec stores 8 bytes big-endian so byte order matches numeric order.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, v), nil
}

func (Uint64Codec) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, decodeError("uint64", data, fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Int64Codec stores 8 bytes big-endian two's complement.
type Int64Codec struct{}

func (Int64Codec) Encode(v int64) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, uint64(v)), nil
}

func (Int64Codec) Decode(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, decodeError("int64", data, fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// UUIDCodec stores the 16 raw bytes of a UUID.
type UUIDCodec struct{}

func (UUIDCodec) Encode(v uuid.UUID) ([]byte, error) {
	return bytes.Clone(v[:]), nil
}

func (UUIDCodec) Decode(data []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, decodeError("uuid", data, err)
	}
	return id, nil
}

// TimeCodec stores milliseconds since the Unix epoch as a big-endian int64.
// Sub-millisecond precision is dropped.
type TimeCodec struct{}

func (TimeCodec) Encode(v time.Time) ([]byte, error) {
	return binary.BigEndian.AppendUint64(nil, uint64(v.UnixMilli())), nil
}

func (TimeCodec) Decode(data []byte) (time.Time, error) {
	if len(data) != 8 {
		return time.Time{}, decodeError("time", data, fmt.Errorf("want 8 bytes, got %d", len(data)))
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(data))).UTC(), nil
}
