// Package transport carries authenticated QUIC connections between widescan
// peers. Both sides present self-signed Ed25519 certificates; a peer is
// identified by the key in its certificate.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/widescan/pkg/log"
)

// MaxIdleTimeout defines the maximum duration a connection can be idle before timing out
const MaxIdleTimeout = 5 * time.Minute

// KeepAlivePeriod keeps idle client connections open between scan pages
const KeepAlivePeriod = 30 * time.Second

// CertValidator performs TLS certificate validation and public key extraction
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
	ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error)
}

// ConnectionHandler takes over connections once they are authenticated.
type ConnectionHandler interface {
	// OnConnection is called for every accepted or dialed connection. An
	// error closes the connection.
	OnConnection(conn *Conn) error
	// GetProtocols returns supported ALPN protocol strings
	GetProtocols() []string
	// ValidateConnection verifies the negotiated TLS parameters
	ValidateConnection(tlsState tls.ConnectionState) error
}

// Config contains all configuration parameters for a Transport
type Config struct {
	TLSCert       *tls.Certificate
	ListenAddr    string // empty for dial-only transports
	CertValidator CertValidator
	Handler       ConnectionHandler
}

// Transport manages QUIC connections and their lifecycles
type Transport struct {
	config   Config
	listener *quic.Listener

	mu    sync.RWMutex
	conns map[string]*Conn // active connections mapped by peer key

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{} // closed when the accept loop exits
}

// NewTransport validates config and returns a transport ready to dial.
// Start must be called before it accepts connections.
func NewTransport(config Config) (*Transport, error) {
	if config.TLSCert == nil {
		return nil, fmt.Errorf("TLS certificate required")
	}
	if config.CertValidator == nil {
		return nil, fmt.Errorf("certificate validator required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("connection handler required")
	}
	if err := config.CertValidator.ValidateCertificate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		config: config,
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  MaxIdleTimeout,
		KeepAlivePeriod: KeepAlivePeriod,
	}
}

// verifyPeer checks the certificate the remote side presented.
func (t *Transport) verifyPeer(certs []*x509.Certificate) error {
	if len(certs) == 0 {
		return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
	}
	if err := t.config.CertValidator.ValidateCertificate(certs[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return nil
}

// tlsConfig builds the TLS configuration for either side. Chain verification
// is replaced by the CertValidator since every certificate is self-signed.
func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*t.config.TLSCert},
		NextProtos:         t.config.Handler.GetProtocols(),
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if err := t.verifyPeer(cs.PeerCertificates); err != nil {
				return err
			}
			if err := t.config.Handler.ValidateConnection(cs); err != nil {
				return fmt.Errorf("connection validation failed: %w", err)
			}
			return nil
		},
	}
}

// Start binds the listener and begins accepting connections.
func (t *Transport) Start() error {
	listener, err := quic.ListenAddr(t.config.ListenAddr, t.tlsConfig(), t.quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}

	t.listener = listener
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.acceptLoop()
	}()

	log.Network.Info().Str("addr", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr returns the address the listener is bound to.
func (t *Transport) Addr() (net.Addr, error) {
	if t.listener == nil {
		return nil, ErrNotStarted
	}
	return t.listener.Addr(), nil
}

// Stop closes every connection and the listener, then waits for the accept
// loop to finish.
func (t *Transport) Stop() error {
	t.cancel()

	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[string]*Conn)
	t.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close connection")
		}
	}

	if t.listener == nil {
		return nil
	}
	if err := t.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	<-t.done
	return nil
}

// Connect dials addr and hands the authenticated connection to the handler.
func (t *Transport) Connect(ctx context.Context, addr string) (*Conn, error) {
	quicConn, err := quic.DialAddr(ctx, addr, t.tlsConfig(), t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}

	conn, err := t.handleConnection(quicConn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnFailed, err)
	}
	return conn, nil
}

// GetConnection retrieves an active connection by peer key.
func (t *Transport) GetConnection(peerKey ed25519.PublicKey) (*Conn, bool) {
	t.mu.RLock()
	conn, ok := t.conns[string(peerKey)]
	t.mu.RUnlock()
	return conn, ok
}

// ListConnections returns a slice of all active connections.
func (t *Transport) ListConnections() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]*Conn, 0, len(t.conns))
	for _, conn := range t.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			log.Network.Warn().Err(err).Msg("accept connection")
			continue
		}

		go func() {
			if _, err := t.handleConnection(qConn); err != nil {
				log.Network.Warn().
					Err(err).
					Str("remote", qConn.RemoteAddr().String()).
					Msg("reject connection")
			}
		}()
	}
}

// handleConnection registers an authenticated QUIC connection and passes it
// to the handler, closing it if either step fails.
func (t *Transport) handleConnection(qConn quic.Connection) (*Conn, error) {
	state := qConn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		qConn.CloseWithError(0, ErrInvalidCertificate.Error()) //nolint:errcheck
		return nil, ErrInvalidCertificate
	}
	peerKey, err := t.config.CertValidator.ExtractPublicKey(state.PeerCertificates[0])
	if err != nil {
		qConn.CloseWithError(0, ErrInvalidCertificate.Error()) //nolint:errcheck
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	conn := t.manageConnection(peerKey, qConn)

	if err := t.config.Handler.OnConnection(conn); err != nil {
		t.cleanup(conn)
		qConn.CloseWithError(0, err.Error()) //nolint:errcheck
		return nil, err
	}

	log.Network.Debug().
		Str("peer", fmt.Sprintf("%x", peerKey[:8])).
		Str("remote", qConn.RemoteAddr().String()).
		Msg("connection established")
	return conn, nil
}

// manageConnection stores conn, replacing any earlier connection from the
// same peer.
func (t *Transport) manageConnection(peerKey ed25519.PublicKey, qConn quic.Connection) *Conn {
	conn := newConn(qConn, t, peerKey)

	t.mu.Lock()
	existing, ok := t.conns[string(peerKey)]
	t.conns[string(peerKey)] = conn
	t.mu.Unlock()

	if ok {
		log.Network.Debug().Msg("replacing existing connection")
		if err := existing.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("close replaced connection")
		}
	}
	return conn
}

// cleanup forgets conn unless it has already been replaced.
func (t *Transport) cleanup(conn *Conn) {
	t.mu.Lock()
	if t.conns[string(conn.peerKey)] == conn {
		delete(t.conns, string(conn.peerKey))
	}
	t.mu.Unlock()
}
