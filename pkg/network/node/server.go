// Package node puts the pieces of the network stack together: a Server
// exposing the column families of a keyspace over QUIC and a Client whose
// families are scan transports backed by that server.
package node

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/eigerco/widescan/internal/metrics"
	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/network/cert"
	"github.com/eigerco/widescan/pkg/network/handlers"
	"github.com/eigerco/widescan/pkg/network/protocol"
	"github.com/eigerco/widescan/pkg/network/transport"
	"github.com/eigerco/widescan/pkg/scan"
)

type ServerConfig struct {
	Keyspace   *store.Keyspace
	ListenAddr string
	// Metrics is optional.
	Metrics *metrics.Metrics
	// CertValidity defaults to cert.DefaultValidity.
	CertValidity time.Duration
}

// Server answers range-slice requests for every family of its keyspace.
type Server struct {
	keyspace  *store.Keyspace
	identity  *cert.Identity
	manager   *protocol.Manager
	transport *transport.Transport
}

// NewServer creates a server with a fresh identity. It does not listen
// until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Keyspace == nil {
		return nil, fmt.Errorf("keyspace required")
	}

	identity, err := cert.NewIdentity(cfg.CertValidity)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}

	manager, err := protocol.NewManager(protocol.Config{Keyspace: cfg.Keyspace.Name()})
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol manager: %w", err)
	}
	families := func(name string) (scan.Transport, error) {
		family, err := cfg.Keyspace.Family(name)
		if err != nil {
			return nil, err
		}
		return family, nil
	}
	manager.Registry.RegisterHandler(protocol.StreamKindRangeSlice, handlers.NewRangeSliceHandler(families, cfg.Metrics))

	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       identity.Certificate,
		ListenAddr:    cfg.ListenAddr,
		CertValidator: cert.NewValidator(),
		Handler:       manager,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Server{
		keyspace:  cfg.Keyspace,
		identity:  identity,
		manager:   manager,
		transport: tr,
	}, nil
}

func (s *Server) Start() error {
	if err := s.transport.Start(); err != nil {
		return err
	}
	log.Network.Info().
		Str("keyspace", s.keyspace.Name()).
		Str("protocol", s.manager.GetProtocols()[0]).
		Str("addr", s.Addr()).
		Msg("server started")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	addr, err := s.transport.Addr()
	if err != nil {
		return ""
	}
	return addr.String()
}

func (s *Server) PublicKey() ed25519.PublicKey {
	return s.identity.PublicKey
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	return s.manager.ConnCount()
}

// Stop disconnects every client and closes the listener. The keyspace is
// left open.
func (s *Server) Stop() error {
	return s.transport.Stop()
}
