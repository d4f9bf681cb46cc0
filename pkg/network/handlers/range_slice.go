package handlers

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/quic-go/quic-go"

	"github.com/eigerco/widescan/internal/metrics"
	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/scan"
)

// MaxLimit is the largest row count a single remote range slice may ask for.
const MaxLimit = 1 << 20

// Status is the outcome code carried by a range-slice response.
type Status uint8

const (
	StatusOK Status = iota
	StatusBadRequest
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusInternal:
		return "internal"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ErrRemote matches every *RemoteError.
var ErrRemote = errors.New("remote range slice failed")

// RemoteError is a failure reported by the serving peer. Retrying the same
// request will not succeed.
type RemoteError struct {
	Status  Status
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Status, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// FamilyFunc resolves a column family name to the transport that serves it
// locally.
type FamilyFunc func(name string) (scan.Transport, error)

// RangeSliceHandler serves range-slice streams.
//
// Node -> Node
// --> Request
// --> FIN
// <-- Response
// <-- FIN
type RangeSliceHandler struct {
	families FamilyFunc
	metrics  *metrics.Metrics
}

// NewRangeSliceHandler creates a handler reading from families. m may be nil.
func NewRangeSliceHandler(families FamilyFunc, m *metrics.Metrics) *RangeSliceHandler {
	return &RangeSliceHandler{families: families, metrics: m}
}

func (h *RangeSliceHandler) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	id := ulid.Make()
	logger := log.Network.With().
		Str("request", id.String()).
		Str("peer", fmt.Sprintf("%x", peerKey[:min(8, len(peerKey))])).
		Logger()
	started := time.Now()

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		stream.CancelRead(0)
		stream.CancelWrite(0)
		return fmt.Errorf("read request message: %w", err)
	}

	family, resp := h.serve(ctx, msg.Content)
	h.metrics.Served(resp.Status.String(), len(resp.Rows), time.Since(started))

	event := logger.Debug()
	if resp.Status != StatusOK {
		event = logger.Warn().Str("error", resp.Error)
	}
	event.
		Str("family", family).
		Stringer("status", resp.Status).
		Int("rows", len(resp.Rows)).
		Dur("took", time.Since(started)).
		Msg("range slice served")

	if err := WriteMessageWithContext(ctx, stream, encodeResponse(resp)); err != nil {
		stream.CancelWrite(0)
		return fmt.Errorf("write response message: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

func (h *RangeSliceHandler) serve(ctx context.Context, content []byte) (string, rangeSliceResponse) {
	req, err := decodeRequest(content)
	if err != nil {
		return "", failure(StatusBadRequest, err)
	}

	t, err := h.families(req.Family)
	if err != nil {
		return req.Family, failure(classify(err), err)
	}
	rows, err := t.RangeSlice(ctx, req.Request)
	if err != nil {
		return req.Family, failure(classify(err), err)
	}
	return req.Family, rangeSliceResponse{Status: StatusOK, Rows: rows}
}

func failure(status Status, err error) rangeSliceResponse {
	return rangeSliceResponse{Status: status, Error: err.Error()}
}

// classify maps store errors caused by the request itself to
// StatusBadRequest.
func classify(err error) Status {
	switch {
	case errors.Is(err, store.ErrInvalidRange),
		errors.Is(err, store.ErrInvalidLimit),
		errors.Is(err, store.ErrInvalidFamily):
		return StatusBadRequest
	default:
		return StatusInternal
	}
}

// RangeSliceRequester is the client side of a range-slice stream.
type RangeSliceRequester struct{}

// RequestRangeSlice sends req for family on stream and waits for the rows.
// Failures reported by the server are returned as *RemoteError; malformed
// responses as *codec.DecodeError.
func (r *RangeSliceRequester) RequestRangeSlice(ctx context.Context, stream quic.Stream, family string, req scan.RangeRequest) ([]scan.RowSlice, error) {
	content := encodeRequest(rangeSliceRequest{Family: family, Request: req})
	if err := WriteMessageWithContext(ctx, stream, content); err != nil {
		return nil, fmt.Errorf("write request message: %w", err)
	}
	// close our write side to signal we're done sending (FIN)
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("close write: %w", err)
	}

	msg, err := ReadMessageWithContext(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("read response message: %w", err)
	}
	resp, err := decodeResponse(msg.Content)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, &RemoteError{Status: resp.Status, Message: resp.Error}
	}
	return resp.Rows, nil
}
