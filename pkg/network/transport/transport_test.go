package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/widescan/pkg/network/cert"
)

const testProtocol = "widescan/0/test"

type MockConnectionHandler struct {
	mock.Mock
	conns chan *Conn
}

func NewMockConnectionHandler() *MockConnectionHandler {
	return &MockConnectionHandler{conns: make(chan *Conn, 8)}
}

func (m *MockConnectionHandler) OnConnection(conn *Conn) error {
	args := m.Called(conn)
	if err := args.Error(0); err != nil {
		return err
	}
	m.conns <- conn
	return nil
}

func (m *MockConnectionHandler) GetProtocols() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConnectionHandler) ValidateConnection(tlsState tls.ConnectionState) error {
	args := m.Called(tlsState)
	return args.Error(0)
}

func acceptingHandler(protocols ...string) *MockConnectionHandler {
	h := NewMockConnectionHandler()
	h.On("GetProtocols").Return(protocols)
	h.On("ValidateConnection", mock.Anything).Return(nil)
	h.On("OnConnection", mock.Anything).Return(nil)
	return h
}

func newTestTransport(t *testing.T, listen string, h ConnectionHandler) (*Transport, *cert.Identity) {
	t.Helper()
	id, err := cert.NewIdentity(time.Hour)
	require.NoError(t, err)
	tr, err := NewTransport(Config{
		TLSCert:       id.Certificate,
		ListenAddr:    listen,
		CertValidator: cert.NewValidator(),
		Handler:       h,
	})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Stop() }) //nolint:errcheck
	return tr, id
}

func startServer(t *testing.T, h ConnectionHandler) (*Transport, *cert.Identity, string) {
	t.Helper()
	tr, id := newTestTransport(t, "127.0.0.1:0", h)
	require.NoError(t, tr.Start())
	addr, err := tr.Addr()
	require.NoError(t, err)
	return tr, id, addr.String()
}

func receive(t *testing.T, h *MockConnectionHandler) *Conn {
	t.Helper()
	select {
	case conn := <-h.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("no connection handed to handler")
		return nil
	}
}

func TestNewTransport(t *testing.T) {
	id, err := cert.NewIdentity(time.Hour)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	expired, err := cert.GenerateValidBetween(pub, priv, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	h := acceptingHandler(testProtocol)
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{name: "valid", config: Config{TLSCert: id.Certificate, CertValidator: cert.NewValidator(), Handler: h}},
		{name: "no certificate", config: Config{CertValidator: cert.NewValidator(), Handler: h}, wantErr: errAny},
		{name: "no validator", config: Config{TLSCert: id.Certificate, Handler: h}, wantErr: errAny},
		{name: "no handler", config: Config{TLSCert: id.Certificate, CertValidator: cert.NewValidator()}, wantErr: errAny},
		{name: "expired certificate", config: Config{TLSCert: expired, CertValidator: cert.NewValidator(), Handler: h}, wantErr: ErrInvalidCertificate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.config)
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.NotNil(t, tr)
			case tt.wantErr == errAny:
				assert.Error(t, err)
			default:
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

var errAny = errors.New("any error")

func TestAddrBeforeStart(t *testing.T) {
	tr, _ := newTestTransport(t, "127.0.0.1:0", acceptingHandler(testProtocol))
	_, err := tr.Addr()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.NoError(t, tr.Stop())
}

func TestConnectLoopback(t *testing.T) {
	serverHandler := acceptingHandler(testProtocol)
	server, serverID, addr := startServer(t, serverHandler)

	clientHandler := acceptingHandler(testProtocol)
	client, clientID := newTestTransport(t, "", clientHandler)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, serverID.PublicKey, conn.PeerKey())
	assert.Same(t, conn, receive(t, clientHandler))

	accepted := receive(t, serverHandler)
	assert.Equal(t, clientID.PublicKey, accepted.PeerKey())

	got, ok := server.GetConnection(clientID.PublicKey)
	require.True(t, ok)
	assert.Same(t, accepted, got)
	assert.Len(t, client.ListConnections(), 1)

	stream, err := conn.OpenStream(ctx)
	require.NoError(t, err)
	_, err = stream.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	remote, err := accepted.AcceptStream()
	require.NoError(t, err)
	payload, err := io.ReadAll(remote)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(payload))
}

func TestConnectProtocolMismatch(t *testing.T) {
	_, _, addr := startServer(t, acceptingHandler(testProtocol))
	client, _ := newTestTransport(t, "", acceptingHandler("widescan/0/other"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, addr)
	assert.ErrorIs(t, err, ErrDialFailed)
}

func TestConnectValidationRejected(t *testing.T) {
	_, _, addr := startServer(t, acceptingHandler(testProtocol))

	h := NewMockConnectionHandler()
	h.On("GetProtocols").Return([]string{testProtocol})
	h.On("ValidateConnection", mock.Anything).Return(errors.New("wrong keyspace"))
	client, _ := newTestTransport(t, "", h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, addr)
	assert.ErrorIs(t, err, ErrDialFailed)
	h.AssertNotCalled(t, "OnConnection", mock.Anything)
}

func TestConnectHandlerRejects(t *testing.T) {
	_, _, addr := startServer(t, acceptingHandler(testProtocol))

	h := NewMockConnectionHandler()
	h.On("GetProtocols").Return([]string{testProtocol})
	h.On("ValidateConnection", mock.Anything).Return(nil)
	h.On("OnConnection", mock.Anything).Return(errors.New("busy"))
	client, _ := newTestTransport(t, "", h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, addr)
	assert.ErrorIs(t, err, ErrConnFailed)
	assert.Empty(t, client.ListConnections())
}

func TestRemoteCloseCleansUp(t *testing.T) {
	serverHandler := acceptingHandler(testProtocol)
	server, serverID, addr := startServer(t, serverHandler)
	client, clientID := newTestTransport(t, "", acceptingHandler(testProtocol))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, addr)
	require.NoError(t, err)
	accepted := receive(t, serverHandler)

	require.NoError(t, conn.Close())
	assert.Error(t, conn.Context().Err())
	_, ok := client.GetConnection(serverID.PublicKey)
	assert.False(t, ok)
	assert.Empty(t, client.ListConnections())

	require.Eventually(t, func() bool {
		_, ok := server.GetConnection(clientID.PublicKey)
		return !ok && accepted.Context().Err() != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReconnectReplacesConnection(t *testing.T) {
	serverHandler := acceptingHandler(testProtocol)
	server, _, addr := startServer(t, serverHandler)
	client, clientID := newTestTransport(t, "", acceptingHandler(testProtocol))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, addr)
	require.NoError(t, err)
	first := receive(t, serverHandler)

	_, err = client.Connect(ctx, addr)
	require.NoError(t, err)
	second := receive(t, serverHandler)

	require.Eventually(t, func() bool { return first.Context().Err() != nil }, 5*time.Second, 10*time.Millisecond)
	got, ok := server.GetConnection(clientID.PublicKey)
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NoError(t, second.Context().Err())
}

func TestStopClosesConnections(t *testing.T) {
	serverHandler := acceptingHandler(testProtocol)
	server, _, addr := startServer(t, serverHandler)
	client, _ := newTestTransport(t, "", acceptingHandler(testProtocol))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, addr)
	require.NoError(t, err)
	accepted := receive(t, serverHandler)

	require.NoError(t, server.Stop())
	assert.Error(t, accepted.Context().Err())
	assert.Empty(t, server.ListConnections())

	require.Eventually(t, func() bool { return conn.Context().Err() != nil }, 5*time.Second, 10*time.Millisecond)
}
