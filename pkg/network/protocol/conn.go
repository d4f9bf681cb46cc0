package protocol

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/widescan/pkg/log"
)

// ErrAcceptFailed reports that the underlying connection stopped yielding
// streams.
var ErrAcceptFailed = errors.New("accept stream failed")

// streamErrorUnknownKind is sent when a stream of an unregistered kind is reset
const streamErrorUnknownKind quic.StreamErrorCode = 1

// TransportConn is the connection a ProtocolConn multiplexes streams over.
// *transport.Conn implements it.
type TransportConn interface {
	OpenStream(ctx context.Context) (quic.Stream, error)
	AcceptStream() (quic.Stream, error)
	PeerKey() ed25519.PublicKey
	RemoteAddr() string
	Context() context.Context
	Close() error
}

// ProtocolConn tags streams with their kind and dispatches incoming streams
// to the registry.
type ProtocolConn struct {
	tConn    TransportConn
	registry *Registry
}

func NewProtocolConn(tConn TransportConn, registry *Registry) *ProtocolConn {
	return &ProtocolConn{
		tConn:    tConn,
		registry: registry,
	}
}

// OpenStream opens a stream and writes kind as its first byte.
func (pc *ProtocolConn) OpenStream(ctx context.Context, kind StreamKind) (quic.Stream, error) {
	stream, err := pc.tConn.OpenStream(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeWithContext(ctx, stream, []byte{byte(kind)}); err != nil {
		stream.CancelWrite(0)
		stream.CancelRead(0)
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

// AcceptStream waits for the next incoming stream and serves it in a new
// goroutine. A returned error wraps ErrAcceptFailed and means the connection
// is unusable.
func (pc *ProtocolConn) AcceptStream() error {
	stream, err := pc.tConn.AcceptStream()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAcceptFailed, err)
	}

	go func() {
		if err := pc.serveStream(stream); err != nil {
			log.Network.Warn().
				Err(err).
				Str("remote", pc.tConn.RemoteAddr()).
				Msg("stream failed")
		}
	}()
	return nil
}

// serveStream reads the stream kind and runs its handler.
func (pc *ProtocolConn) serveStream(stream quic.Stream) error {
	kind := make([]byte, 1)
	if _, err := io.ReadFull(stream, kind); err != nil {
		stream.CancelRead(0)
		stream.CancelWrite(0)
		return fmt.Errorf("failed to read stream kind: %w", err)
	}

	handler, err := pc.registry.GetHandler(StreamKind(kind[0]))
	if err != nil {
		stream.CancelRead(streamErrorUnknownKind)
		stream.CancelWrite(streamErrorUnknownKind)
		return err
	}

	if err := handler.HandleStream(pc.tConn.Context(), stream, pc.tConn.PeerKey()); err != nil {
		return fmt.Errorf("%s handler: %w", StreamKind(kind[0]), err)
	}
	return nil
}

// writeWithContext writes p unless ctx is done first.
func writeWithContext(ctx context.Context, stream quic.Stream, p []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := stream.Write(p)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pc *ProtocolConn) PeerKey() ed25519.PublicKey {
	return pc.tConn.PeerKey()
}

// Context is cancelled once the connection is closed.
func (pc *ProtocolConn) Context() context.Context {
	return pc.tConn.Context()
}

func (pc *ProtocolConn) Close() error {
	return pc.tConn.Close()
}
