package node

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/widescan/internal/metrics"
	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/codec"
	"github.com/eigerco/widescan/pkg/db/memory"
	"github.com/eigerco/widescan/pkg/network/handlers"
	"github.com/eigerco/widescan/pkg/network/transport"
	"github.com/eigerco/widescan/pkg/scan"
)

func startServer(t *testing.T, m *metrics.Metrics) (*Server, *store.Keyspace) {
	t.Helper()
	ks := store.NewKeyspace("accounts", memory.NewKVStore())
	t.Cleanup(func() { ks.Close() }) //nolint:errcheck

	srv, err := NewServer(ServerConfig{Keyspace: ks, ListenAddr: "127.0.0.1:0", Metrics: m})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() }) //nolint:errcheck
	return srv, ks
}

func dial(t *testing.T, addr, keyspace string, m *metrics.Metrics) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, ClientConfig{Addr: addr, Keyspace: keyspace, Retries: 2, RetryInterval: 10 * time.Millisecond, Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	return c
}

func TestRemoteScan(t *testing.T) {
	srv, ks := startServer(t, nil)
	users, err := ks.Family("users")
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		require.NoError(t, users.Insert([]byte(fmt.Sprintf("user%02d", i)),
			scan.RawColumn{Name: []byte("email"), Value: []byte(fmt.Sprintf("u%d@example.com", i))},
			scan.RawColumn{Name: []byte("name"), Value: []byte(fmt.Sprintf("User %d", i))},
		))
	}

	clientMetrics := metrics.New()
	client := dial(t, srv.Addr(), "accounts", clientMetrics)

	codecs := scan.Codecs[string, string, string]{Key: codec.String, Name: codec.String, Value: codec.String}
	r := scan.Range{Start: []byte("user05"), End: []byte("user24")}

	local, err := scan.NewCursor(users, codecs, r, 3, scan.AllColumns())
	require.NoError(t, err)
	want, err := scan.NewWalker(local).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, want, 40)

	remote, err := scan.NewCursor(client.Family("users"), codecs, r, 3, scan.AllColumns())
	require.NoError(t, err)
	got, err := scan.NewWalker(remote).Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, 1, srv.Connections())
	series, err := testutil.GatherAndCount(clientMetrics.Registry(), "widescan_range_slice_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestRemoteErrorIsNotRetried(t *testing.T) {
	serverMetrics := metrics.New()
	srv, _ := startServer(t, serverMetrics)
	client := dial(t, srv.Addr(), "accounts", nil)

	_, err := client.RangeSlice(context.Background(), "users", scan.RangeRequest{
		StartKey: []byte("z"),
		EndKey:   []byte("a"),
		Limit:    10,
	})
	require.ErrorIs(t, err, handlers.ErrRemote)

	var remote *handlers.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, handlers.StatusBadRequest, remote.Status)

	expected := `
# HELP widescan_range_slices_served_total Range-slice requests answered by the server.
# TYPE widescan_range_slices_served_total counter
widescan_range_slices_served_total{status="bad_request"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(serverMetrics.Registry(), strings.NewReader(expected), "widescan_range_slices_served_total"))
}

func TestDialKeyspaceMismatch(t *testing.T) {
	srv, _ := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, ClientConfig{Addr: srv.Addr(), Keyspace: "orders"})
	require.ErrorIs(t, err, transport.ErrDialFailed)
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, ClientConfig{Addr: "127.0.0.1:1", Keyspace: "accounts", Retries: 1, RetryInterval: time.Millisecond})
	require.Error(t, err)
}

func TestClientReconnects(t *testing.T) {
	srv, ks := startServer(t, nil)
	users, err := ks.Family("users")
	require.NoError(t, err)
	require.NoError(t, users.Insert([]byte("a"), scan.RawColumn{Name: []byte("n"), Value: []byte("1")}))

	client := dial(t, srv.Addr(), "accounts", nil)
	req := scan.RangeRequest{StartKey: []byte("a"), Limit: 2}

	rows, err := client.RangeSlice(context.Background(), "users", req)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	client.mu.Lock()
	require.NoError(t, client.conn.Close())
	client.mu.Unlock()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.conn.Context().Err() != nil
	}, time.Second, 10*time.Millisecond)

	rows, err = client.RangeSlice(context.Background(), "users", req)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewServerRequiresKeyspace(t *testing.T) {
	_, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0"})
	require.Error(t, err)
}
