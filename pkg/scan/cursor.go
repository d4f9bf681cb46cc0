// Package scan walks a key range of a column family one bounded page at a
// time.
//
// A scan is a chain of immutable Cursor values. Advance issues one range-slice
// request for the page that follows a cursor and yields a new cursor holding
// the decoded page; the old cursor is left untouched and can be advanced again
// if the request fails. Walker drains a chain element by element for callers
// that prefer pull-style iteration.
//
// Range-slice requests include their start key, so every page after the first
// begins with the last row of the previous page. Cursors remember that key and
// drop the repeated row.
package scan

import (
	"bytes"
	"context"
	"fmt"

	"github.com/eigerco/widescan/pkg/log"
)

// minResumeLimit keeps resumed requests able to return one row past the
// repeated boundary row.
const minResumeLimit = 2

// Cursor is an immutable snapshot of scan progress: the page most recently
// fetched and where the next page starts. It is safe for concurrent reads;
// Advance must not be called concurrently on the same cursor.
type Cursor[K, N, V any] struct {
	transport Transport
	codecs    Codecs[K, N, V]
	predicate Predicate
	pageSize  int

	start []byte
	end   []byte

	// skipKey is the last key of the previous page, expected again as the
	// first row of the next one. Only meaningful when resumed is set.
	skipKey []byte
	resumed bool

	buffer     []Pair[K, N, V]
	terminated bool
	pages      int
}

// NewCursor returns the cursor a scan of r starts from. Its buffer is empty
// and it is not terminated.
func NewCursor[K, N, V any](t Transport, codecs Codecs[K, N, V], r Range, pageSize int, p Predicate) (*Cursor[K, N, V], error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	return &Cursor[K, N, V]{
		transport: t,
		codecs:    codecs,
		predicate: p,
		pageSize:  pageSize,
		start:     bytes.Clone(r.Start),
		end:       bytes.Clone(r.End),
	}, nil
}

// Buffer returns the decoded page fetched by the Advance that produced c,
// in store order. Callers must not modify it.
func (c *Cursor[K, N, V]) Buffer() []Pair[K, N, V] { return c.buffer }

// Terminated reports whether the range is fully consumed. The buffer of a
// terminated cursor still holds the final page.
func (c *Cursor[K, N, V]) Terminated() bool { return c.terminated }

// StartKey is the key the next page request starts from.
func (c *Cursor[K, N, V]) StartKey() []byte { return c.start }

func (c *Cursor[K, N, V]) EndKey() []byte { return c.end }

// SkipKey is the boundary key dropped from the head of the next page, or nil
// before the first page.
func (c *Cursor[K, N, V]) SkipKey() []byte {
	if !c.resumed {
		return nil
	}
	return c.skipKey
}

func (c *Cursor[K, N, V]) PageSize() int { return c.pageSize }

func (c *Cursor[K, N, V]) Predicate() Predicate { return c.predicate }

// Advance fetches the next page in its own goroutine. The future resolves to
// the successor cursor, or to the transport or codec error unchanged, in
// which case c remains valid and Advance may be retried. Advancing a
// terminated cursor resolves to ErrInvalidState.
func (c *Cursor[K, N, V]) Advance(ctx context.Context) *Future[*Cursor[K, N, V]] {
	if c.terminated {
		return Resolved[*Cursor[K, N, V]](nil, ErrInvalidState)
	}
	return NewFuture(func() (*Cursor[K, N, V], error) {
		return c.advance(ctx)
	})
}

// limit is the row count requested for the next page. The first request asks
// for one row more than the page size; resumed requests ask for the page size.
func (c *Cursor[K, N, V]) limit() int {
	if !c.resumed {
		return c.pageSize + 1
	}
	return max(c.pageSize, minResumeLimit)
}

func (c *Cursor[K, N, V]) advance(ctx context.Context) (*Cursor[K, N, V], error) {
	limit := c.limit()
	rows, err := c.transport.RangeSlice(ctx, RangeRequest{
		StartKey:  c.start,
		EndKey:    c.end,
		Limit:     limit,
		Predicate: c.predicate,
	})
	if err != nil {
		return nil, err
	}

	fresh := rows
	if c.resumed && len(fresh) > 0 && bytes.Equal(fresh[0].Key, c.skipKey) {
		fresh = fresh[1:]
	}

	buffer, err := c.decode(fresh)
	if err != nil {
		return nil, err
	}

	lastFound := c.end
	if len(rows) > 0 {
		lastFound = rows[len(rows)-1].Key
	}

	next := &Cursor[K, N, V]{
		transport: c.transport,
		codecs:    c.codecs,
		predicate: c.predicate,
		pageSize:  c.pageSize,
		start:     c.start,
		end:       c.end,
		skipKey:   c.skipKey,
		resumed:   c.resumed,
		buffer:    buffer,
		pages:     c.pages + 1,
	}

	switch {
	case len(rows) == 0:
		next.terminated = true
	case len(fresh) > 0 && bytes.Compare(lastFound, c.start) < 0,
		c.resumed && len(fresh) > 0 && bytes.Compare(lastFound, c.skipKey) <= 0:
		return nil, fmt.Errorf("%w: last key %x, resumed from %x", ErrKeyRegression, lastFound, c.start)
	case bytes.Equal(lastFound, c.end):
		next.terminated = true
	case c.resumed && len(fresh) == 0:
		// Only the boundary row came back: nothing is left before the end key.
		next.terminated = true
	default:
		next.start = lastFound
		next.skipKey = lastFound
		next.resumed = true
	}

	log.Scan.Debug().
		Int("page", next.pages).
		Int("limit", limit).
		Int("rows", len(rows)).
		Int("pairs", len(buffer)).
		Bool("terminated", next.terminated).
		Msg("range slice page")

	return next, nil
}

func (c *Cursor[K, N, V]) decode(rows []RowSlice) ([]Pair[K, N, V], error) {
	size := 0
	for _, row := range rows {
		size += len(row.Columns)
	}
	buffer := make([]Pair[K, N, V], 0, size)

	for _, row := range rows {
		key, err := c.codecs.Key.Decode(row.Key)
		if err != nil {
			return nil, err
		}
		for _, col := range row.Columns {
			name, err := c.codecs.Name.Decode(col.Name)
			if err != nil {
				return nil, err
			}
			value, err := c.codecs.Value.Decode(col.Value)
			if err != nil {
				return nil, err
			}
			buffer = append(buffer, Pair[K, N, V]{
				Key:    key,
				Column: Column[N, V]{Name: name, Value: value},
			})
		}
	}
	return buffer, nil
}
