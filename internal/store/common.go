package store

import (
	"bytes"
	"errors"
)

// Prefix constants for all key spaces kept in the underlying store
const (
	prefixColumn byte = iota + 1
	prefixFamily
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixColumn:
		return "column"
	case prefixFamily:
		return "family"
	default:
		return "unknown"
	}
}

var errMalformedKey = errors.New("store: malformed key")

// appendEscaped appends b so that byte order is preserved across
// concatenation: 0x00 becomes 0x00 0xff and the value ends with 0x00 0x01.
// A value that is a prefix of another therefore sorts first.
func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			dst = append(dst, 0x00, 0xff)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00, 0x01)
}

// readEscaped undoes appendEscaped and returns whatever follows the terminator.
func readEscaped(b []byte) (value, rest []byte, err error) {
	value = make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			value = append(value, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, errMalformedKey
		}
		switch b[i+1] {
		case 0xff:
			value = append(value, 0x00)
			i++
		case 0x01:
			return value, b[i+2:], nil
		default:
			return nil, nil, errMalformedKey
		}
	}
	return nil, nil, errMalformedKey
}

// makeKey creates a key from a prefix and escaped components
func makeKey(prefix byte, parts ...[]byte) []byte {
	key := []byte{prefix}
	for _, p := range parts {
		key = appendEscaped(key, p)
	}
	return key
}

// prefixEnd returns the smallest key greater than every key that starts
// with an escaped prefix, i.e. the prefix with its 0x00 0x01 terminator
// bumped to 0x00 0x02.
func prefixEnd(escaped []byte) []byte {
	end := bytes.Clone(escaped)
	end[len(end)-1] = 0x02
	return end
}
