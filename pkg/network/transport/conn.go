package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"
)

// Conn is an authenticated QUIC connection with a remote peer. Its context
// is cancelled when the connection closes from either side or the transport
// stops.
type Conn struct {
	qConn     quic.Connection
	transport *Transport
	peerKey   ed25519.PublicKey
	ctx       context.Context
	cancel    context.CancelFunc
}

func newConn(qConn quic.Connection, transport *Transport, peerKey ed25519.PublicKey) *Conn {
	ctx, cancel := context.WithCancel(transport.ctx)
	conn := &Conn{
		qConn:     qConn,
		transport: transport,
		peerKey:   peerKey,
		ctx:       ctx,
		cancel:    cancel,
	}
	context.AfterFunc(qConn.Context(), func() {
		cancel()
		transport.cleanup(conn)
	})
	return conn
}

// OpenStream opens a new bidirectional stream, waiting for flow control if
// the peer's stream limit is reached.
func (c *Conn) OpenStream(ctx context.Context) (quic.Stream, error) {
	stream, err := c.qConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	return stream, nil
}

// AcceptStream waits for the peer to open a stream.
func (c *Conn) AcceptStream() (quic.Stream, error) {
	stream, err := c.qConn.AcceptStream(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}
	return stream, nil
}

// PeerKey returns the public key of the connected peer.
func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

func (c *Conn) RemoteAddr() string {
	return c.qConn.RemoteAddr().String()
}

// Close closes the connection, cancels its context and removes it from the
// transport's connection table.
func (c *Conn) Close() error {
	c.cancel()
	c.transport.cleanup(c)
	return c.qConn.CloseWithError(0, "")
}

func (c *Conn) Context() context.Context {
	return c.ctx
}
