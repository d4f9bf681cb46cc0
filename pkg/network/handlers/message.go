package handlers

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds the content of a single framed message.
const MaxMessageSize = 64 << 20

var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Message is one length-prefixed frame: a little-endian uint32 size followed
// by that many content bytes.
type Message struct {
	Size    uint32
	Content []byte
}

// WriteMessageWithContext frames content and writes it to w. The write runs
// in its own goroutine so that ctx can abandon it; the caller must then
// discard w.
func WriteMessageWithContext(ctx context.Context, w io.Writer, content []byte) error {
	if len(content) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(content))
	}

	done := make(chan error, 1)
	go func() {
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(content)))
		if _, err := w.Write(size[:]); err != nil {
			done <- fmt.Errorf("failed to write message size: %w", err)
			return
		}
		if _, err := w.Write(content); err != nil {
			done <- fmt.Errorf("failed to write message content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessageWithContext reads one frame from r, giving up when ctx is done.
func ReadMessageWithContext(ctx context.Context, r io.Reader) (*Message, error) {
	type result struct {
		msg *Message
		err error
	}
	done := make(chan result, 1)

	go func() {
		var size [4]byte
		if _, err := io.ReadFull(r, size[:]); err != nil {
			done <- result{err: fmt.Errorf("failed to read message size: %w", err)}
			return
		}
		n := binary.LittleEndian.Uint32(size[:])
		if n > MaxMessageSize {
			done <- result{err: fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)}
			return
		}

		content := make([]byte, n)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- result{err: fmt.Errorf("failed to read message content: %w", err)}
			return
		}
		done <- result{msg: &Message{Size: n, Content: content}}
	}()

	select {
	case res := <-done:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
