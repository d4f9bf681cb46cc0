package protocol

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"
)

// Stream kinds. Every widescan stream is ephemeral: one request and its
// response, then FIN.
const (
	StreamKindRangeSlice StreamKind = 128
)

var ErrUnknownStreamKind = errors.New("unknown stream kind")

// StreamKind is the first byte written on every stream.
type StreamKind byte

func (k StreamKind) String() string {
	switch k {
	case StreamKindRangeSlice:
		return "range-slice"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// StreamHandler processes individual QUIC streams within a connection
type StreamHandler interface {
	HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error
}

// Registry maps stream kinds to the handlers serving them.
type Registry struct {
	mu       sync.RWMutex
	handlers map[StreamKind]StreamHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[StreamKind]StreamHandler),
	}
}

// RegisterHandler associates a handler with a stream kind, replacing any
// handler registered earlier.
func (r *Registry) RegisterHandler(kind StreamKind, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

// GetHandler returns the handler for kind or ErrUnknownStreamKind.
func (r *Registry) GetHandler(kind StreamKind) (StreamHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStreamKind, kind)
	}
	return handler, nil
}
