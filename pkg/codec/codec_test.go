package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		input  []byte
	}{
		{
			name:   "utf8",
			decode: func(b []byte) error { _, err := String.Decode(b); return err },
			input:  []byte{0xff, 0xfe},
		},
		{
			name:   "uint64_short",
			decode: func(b []byte) error { _, err := Uint64.Decode(b); return err },
			input:  []byte{1, 2, 3},
		},
		{
			name:   "int64_long",
			decode: func(b []byte) error { _, err := Int64.Decode(b); return err },
			input:  make([]byte, 9),
		},
		{
			name:   "uuid",
			decode: func(b []byte) error { _, err := UUID.Decode(b); return err },
			input:  []byte("not-a-uuid"),
		},
		{
			name:   "time",
			decode: func(b []byte) error { _, err := Time.Decode(b); return err },
			input:  nil,
		},
		{
			name:   "json",
			decode: func(b []byte) error { _, err := JSON[map[string]int]().Decode(b); return err },
			input:  []byte(`{"a":`),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode(tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tc.input, decodeErr.Data)
		})
	}
}

func TestUint64PreservesOrder(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 1 << 32, 1<<64 - 1}
	for i := 1; i < len(values); i++ {
		prev, err := Uint64.Encode(values[i-1])
		require.NoError(t, err)
		next, err := Uint64.Encode(values[i])
		require.NoError(t, err)
		assert.Equal(t, -1, bytes.Compare(prev, next), "%d < %d", values[i-1], values[i])
	}
}

func TestTimeTruncatesToMillis(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)

	encoded, err := Time.Encode(ts)
	require.NoError(t, err)
	decoded, err := Time.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, ts.Truncate(time.Millisecond), decoded)
}

func TestUUID(t *testing.T) {
	id := uuid.New()

	encoded, err := UUID.Encode(id)
	require.NoError(t, err)
	assert.Len(t, encoded, 16)

	decoded, err := UUID.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestBytesAreCopied(t *testing.T) {
	src := []byte("abc")
	decoded, err := Bytes.Decode(src)
	require.NoError(t, err)

	src[0] = 'x'
	assert.Equal(t, []byte("abc"), decoded)
}

func TestStringEncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := String.Encode(string([]byte{0xff}))
	assert.Error(t, err)
}
