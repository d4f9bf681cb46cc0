package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/eigerco/widescan/internal/metrics"
	"github.com/eigerco/widescan/pkg/codec"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/network/cert"
	"github.com/eigerco/widescan/pkg/network/handlers"
	"github.com/eigerco/widescan/pkg/network/protocol"
	"github.com/eigerco/widescan/pkg/network/transport"
	"github.com/eigerco/widescan/pkg/scan"
)

const defaultRetryInterval = 100 * time.Millisecond

type ClientConfig struct {
	Addr     string
	Keyspace string
	// Retries is how many times a failed dial or range slice is retried with
	// exponential backoff. Errors reported by the server are never retried.
	Retries int
	// RetryInterval is the first backoff delay; defaults to 100ms.
	RetryInterval time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
	// CertValidity defaults to cert.DefaultValidity.
	CertValidity time.Duration
}

// Client holds one connection to a Server and reconnects when it drops.
type Client struct {
	cfg       ClientConfig
	manager   *protocol.Manager
	transport *transport.Transport
	requester handlers.RangeSliceRequester

	mu   sync.Mutex
	conn *protocol.ProtocolConn
}

// Dial connects to the server at cfg.Addr serving cfg.Keyspace.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}

	identity, err := cert.NewIdentity(cfg.CertValidity)
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	manager, err := protocol.NewManager(protocol.Config{Keyspace: cfg.Keyspace})
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol manager: %w", err)
	}
	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       identity.Certificate,
		CertValidator: cert.NewValidator(),
		Handler:       manager,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	c := &Client{cfg: cfg, manager: manager, transport: tr}
	if _, err := c.connection(ctx); err != nil {
		tr.Stop() //nolint:errcheck
		return nil, err
	}
	return c, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.cfg.Retries, 0))), ctx)
}

func (c *Client) notify(what string) backoff.Notify {
	return func(err error, wait time.Duration) {
		log.Network.Debug().Err(err).Str("addr", c.cfg.Addr).Dur("wait", wait).Msg(what + " failed, retrying")
	}
}

// connection returns the live connection, dialing a new one if there is
// none or the last one closed.
func (c *Client) connection(ctx context.Context) (*protocol.ProtocolConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Context().Err() == nil {
		return c.conn, nil
	}

	dial := func() (*protocol.ProtocolConn, error) {
		tConn, err := c.transport.Connect(ctx, c.cfg.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		pc, ok := c.manager.Conn(tConn.PeerKey())
		if !ok {
			return nil, transport.ErrConnFailed
		}
		return pc, nil
	}
	pc, err := backoff.RetryNotifyWithData(dial, c.backoff(ctx), c.notify("dial"))
	if err != nil {
		return nil, err
	}
	c.conn = pc
	return pc, nil
}

// Family returns a scan.Transport reading family name from the server.
func (c *Client) Family(name string) scan.Transport {
	return scan.TransportFunc(func(ctx context.Context, req scan.RangeRequest) ([]scan.RowSlice, error) {
		return c.RangeSlice(ctx, name, req)
	})
}

// RangeSlice performs one remote range slice, retrying transport failures.
func (c *Client) RangeSlice(ctx context.Context, family string, req scan.RangeRequest) ([]scan.RowSlice, error) {
	started := time.Now()
	op := func() ([]scan.RowSlice, error) {
		rows, err := c.rangeSliceOnce(ctx, family, req)
		if err != nil && (errors.Is(err, handlers.ErrRemote) || errors.Is(err, codec.ErrDecode) || ctx.Err() != nil) {
			return nil, backoff.Permanent(err)
		}
		return rows, err
	}
	rows, err := backoff.RetryNotifyWithData(op, c.backoff(ctx), c.notify("range slice"))
	c.cfg.Metrics.Requested(err, time.Since(started))
	return rows, err
}

func (c *Client) rangeSliceOnce(ctx context.Context, family string, req scan.RangeRequest) ([]scan.RowSlice, error) {
	pc, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := pc.OpenStream(ctx, protocol.StreamKindRangeSlice)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	// the response is complete once read; drop whatever else the peer sends
	defer stream.CancelRead(0)

	return c.requester.RequestRangeSlice(ctx, stream, family, req)
}

// Close drops the connection.
func (c *Client) Close() error {
	return c.transport.Stop()
}
