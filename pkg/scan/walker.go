package scan

import (
	"context"
	"errors"
	"iter"
)

// Walker reads a scan one pair at a time, blocking on Advance whenever the
// current page runs out. A Walker is not safe for concurrent use and must not
// be driven from code that may not block.
type Walker[K, N, V any] struct {
	cursor *Cursor[K, N, V]
	pos    int
}

// NewWalker starts reading at the beginning of c's buffer.
func NewWalker[K, N, V any](c *Cursor[K, N, V]) *Walker[K, N, V] {
	return &Walker[K, N, V]{cursor: c}
}

// HasMore reports whether unread pairs are buffered or more pages may be
// fetched. It never performs I/O, so it can report true for a scan whose
// remaining pages turn out to be empty; Next then returns ErrExhausted.
func (w *Walker[K, N, V]) HasMore() bool {
	return w.pos < len(w.cursor.buffer) || !w.cursor.terminated
}

// Next returns the next pair of the scan. It returns ErrExhausted once the
// scan is terminated and drained. When fetching a page fails the error is
// returned and the walker stays on its current cursor, so Next can be
// called again to retry.
func (w *Walker[K, N, V]) Next(ctx context.Context) (Pair[K, N, V], error) {
	for {
		if w.pos < len(w.cursor.buffer) {
			p := w.cursor.buffer[w.pos]
			w.pos++
			return p, nil
		}
		if w.cursor.terminated {
			return Pair[K, N, V]{}, ErrExhausted
		}

		next, err := w.cursor.Advance(ctx).Wait(ctx)
		if err != nil {
			return Pair[K, N, V]{}, err
		}
		w.cursor = next
		w.pos = 0
	}
}

// Cursor returns the cursor whose buffer the walker is reading.
func (w *Walker[K, N, V]) Cursor() *Cursor[K, N, V] {
	return w.cursor
}

// All returns an iterator over the remaining pairs. Iteration stops after the
// first error, which is yielded with a zero pair.
func (w *Walker[K, N, V]) All(ctx context.Context) iter.Seq2[Pair[K, N, V], error] {
	return func(yield func(Pair[K, N, V], error) bool) {
		for w.HasMore() {
			p, err := w.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				return
			}
			if !yield(p, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains the walker into a slice.
func (w *Walker[K, N, V]) Collect(ctx context.Context) ([]Pair[K, N, V], error) {
	var out []Pair[K, N, V]
	for p, err := range w.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}
