package protocol

import (
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/network/transport"
)

// Config represents the configuration for a protocol Manager
type Config struct {
	// Keyspace is the name of the keyspace served or queried. Both peers
	// must use the same one.
	Keyspace string
}

// Manager implements transport.ConnectionHandler: it negotiates the
// keyspace-bound ALPN protocol and serves the streams of every connection.
type Manager struct {
	Registry *Registry
	config   Config
	hash     string

	mu    sync.RWMutex
	conns map[string]*ProtocolConn
}

var _ transport.ConnectionHandler = (*Manager)(nil)

func NewManager(config Config) (*Manager, error) {
	if config.Keyspace == "" {
		return nil, fmt.Errorf("keyspace required")
	}
	return &Manager{
		Registry: NewRegistry(),
		config:   config,
		hash:     KeyspaceHash(config.Keyspace),
		conns:    make(map[string]*ProtocolConn),
	}, nil
}

// OnConnection wraps an authenticated transport connection and starts
// serving its streams.
func (m *Manager) OnConnection(conn *transport.Conn) error {
	m.Attach(conn)
	return nil
}

// Attach registers conn under its peer key, replacing an older connection of
// the same peer, and serves incoming streams until conn closes.
func (m *Manager) Attach(conn TransportConn) *ProtocolConn {
	pc := NewProtocolConn(conn, m.Registry)

	m.mu.Lock()
	m.conns[string(conn.PeerKey())] = pc
	m.mu.Unlock()

	go m.handleStreams(pc)
	return pc
}

// Conn returns the live connection of a peer.
func (m *Manager) Conn(peerKey ed25519.PublicKey) (*ProtocolConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pc, ok := m.conns[string(peerKey)]
	return pc, ok
}

// ConnCount returns the number of live connections.
func (m *Manager) ConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) handleStreams(pc *ProtocolConn) {
	defer m.detach(pc)

	for {
		if err := pc.AcceptStream(); err != nil {
			log.Network.Debug().Err(err).Msg("connection closed")
			return
		}
	}
}

func (m *Manager) detach(pc *ProtocolConn) {
	m.mu.Lock()
	if m.conns[string(pc.PeerKey())] == pc {
		delete(m.conns, string(pc.PeerKey()))
	}
	m.mu.Unlock()

	if err := pc.Close(); err != nil {
		log.Network.Debug().Err(err).Msg("close connection")
	}
}

// GetProtocols returns the ALPN protocols offered for this keyspace.
func (m *Manager) GetProtocols() []string {
	return AcceptableProtocols(m.hash)
}

// ValidateConnection checks that the negotiated protocol names this
// keyspace.
func (m *Manager) ValidateConnection(tlsState tls.ConnectionState) error {
	if tlsState.NegotiatedProtocol == "" {
		return fmt.Errorf("no protocol negotiated")
	}

	id, err := ParseProtocolID(tlsState.NegotiatedProtocol)
	if err != nil {
		return fmt.Errorf("invalid protocol: %w", err)
	}
	if id.KeyspaceHash != m.hash {
		return fmt.Errorf("keyspace mismatch: got %s, want %s", id.KeyspaceHash, m.hash)
	}
	return nil
}
