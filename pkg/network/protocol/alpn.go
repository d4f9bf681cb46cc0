package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	protocolPrefix = "widescan"

	// Current protocol version
	currentVersion = "0"

	// Keyspace hash length in nibbles
	keyspaceHashLength = 8
)

// KeyspaceHash derives the 8-nibble identifier of a keyspace name used in
// ALPN protocol ids, so peers serving different keyspaces refuse each other
// during the handshake.
func KeyspaceHash(keyspace string) string {
	sum := blake2b.Sum256([]byte(keyspace))
	return hex.EncodeToString(sum[:])[:keyspaceHashLength]
}

// ProtocolID is an ALPN protocol identifier.
// Format: widescan/<version>/<keyspace-hash>
type ProtocolID struct {
	Version      string
	KeyspaceHash string
}

// NewProtocolID returns the id of the current protocol version for a
// keyspace hash.
func NewProtocolID(keyspaceHash string) *ProtocolID {
	return &ProtocolID{
		Version:      currentVersion,
		KeyspaceHash: keyspaceHash,
	}
}

func (p *ProtocolID) String() string {
	return strings.Join([]string{protocolPrefix, p.Version, p.KeyspaceHash}, "/")
}

// ParseProtocolID parses and validates an ALPN protocol string.
func ParseProtocolID(protocol string) (*ProtocolID, error) {
	parts := strings.Split(protocol, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid protocol format: %s", protocol)
	}
	if parts[0] != protocolPrefix {
		return nil, fmt.Errorf("invalid protocol prefix: %s", parts[0])
	}
	if parts[1] != currentVersion {
		return nil, fmt.Errorf("unsupported protocol version: %s", parts[1])
	}

	hash := parts[2]
	if len(hash) != keyspaceHashLength {
		return nil, fmt.Errorf("invalid keyspace hash length: %s", hash)
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, fmt.Errorf("invalid keyspace hash character: %c", c)
		}
	}

	return &ProtocolID{Version: parts[1], KeyspaceHash: hash}, nil
}

func ValidateALPNProtocol(protocol string) error {
	_, err := ParseProtocolID(protocol)
	return err
}

// AcceptableProtocols returns the protocol strings offered during the
// handshake for a keyspace hash.
func AcceptableProtocols(keyspaceHash string) []string {
	return []string{NewProtocolID(keyspaceHash).String()}
}
