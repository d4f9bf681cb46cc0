package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyspaceHash(t *testing.T) {
	h := KeyspaceHash("demo")
	assert.Len(t, h, keyspaceHashLength)
	assert.Equal(t, h, KeyspaceHash("demo"))
	assert.NotEqual(t, h, KeyspaceHash("other"))
	assert.NoError(t, ValidateALPNProtocol(NewProtocolID(h).String()))
}

func TestProtocolIDString(t *testing.T) {
	assert.Equal(t, "widescan/0/abcd1234", NewProtocolID("abcd1234").String())
	assert.Equal(t, []string{"widescan/0/abcd1234"}, AcceptableProtocols("abcd1234"))
}

func TestParseProtocolID(t *testing.T) {
	id, err := ParseProtocolID("widescan/0/0123abcd")
	require.NoError(t, err)
	assert.Equal(t, &ProtocolID{Version: "0", KeyspaceHash: "0123abcd"}, id)

	invalid := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "too few parts", input: "widescan/0"},
		{name: "too many parts", input: "widescan/0/abcd1234/extra"},
		{name: "wrong prefix", input: "jamnp-s/0/abcd1234"},
		{name: "wrong version", input: "widescan/1/abcd1234"},
		{name: "short hash", input: "widescan/0/abcd"},
		{name: "upper case hash", input: "widescan/0/ABCD1234"},
		{name: "non hex hash", input: "widescan/0/abcdxyz1"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProtocolID(tc.input)
			assert.Error(t, err)
			assert.Error(t, ValidateALPNProtocol(tc.input))
		})
	}
}
