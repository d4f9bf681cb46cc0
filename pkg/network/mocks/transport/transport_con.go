package transport

import (
	"context"
	"crypto/ed25519"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/mock"
)

// MockTransportConn mocks the connection a protocol.ProtocolConn runs on.
// Context and PeerKey fall back to fixed values when no expectation is set.
type MockTransportConn struct {
	mock.Mock
	ctx     context.Context
	cancel  context.CancelFunc
	peerKey ed25519.PublicKey
}

func NewMockTransportConn() *MockTransportConn {
	ctx, cancel := context.WithCancel(context.Background())
	peerKey, _, _ := ed25519.GenerateKey(nil)
	return &MockTransportConn{
		ctx:     ctx,
		cancel:  cancel,
		peerKey: peerKey,
	}
}

func (m *MockTransportConn) OpenStream(ctx context.Context) (quic.Stream, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(quic.Stream), args.Error(1)
}

func (m *MockTransportConn) AcceptStream() (quic.Stream, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(quic.Stream), args.Error(1)
}

func (m *MockTransportConn) Context() context.Context {
	return m.ctx
}

func (m *MockTransportConn) PeerKey() ed25519.PublicKey {
	return m.peerKey
}

func (m *MockTransportConn) RemoteAddr() string {
	return "127.0.0.1:1234"
}

func (m *MockTransportConn) Close() error {
	m.cancel()
	args := m.Called()
	return args.Error(0)
}
