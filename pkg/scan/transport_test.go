package scan

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
)

var errFlaky = errors.New("flaky transport")

// memTransport serves range slices from a fixed set of rows and records every
// request it sees.
type memTransport struct {
	rows []RowSlice

	mu       sync.Mutex
	requests []RangeRequest
	// failAt makes the request with that index (0-based) fail once.
	failAt map[int]bool
}

func newMemTransport(keys ...string) *memTransport {
	rows := make([]RowSlice, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, RowSlice{
			Key:     []byte(k),
			Columns: []RawColumn{{Name: []byte("v"), Value: []byte("value-" + k)}},
		})
	}
	sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i].Key, rows[j].Key) < 0 })
	return &memTransport{rows: rows, failAt: map[int]bool{}}
}

func (m *memTransport) RangeSlice(ctx context.Context, req RangeRequest) ([]RowSlice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	fail := m.failAt[n]
	delete(m.failAt, n)
	m.mu.Unlock()

	if fail {
		return nil, errFlaky
	}

	var out []RowSlice
	for _, row := range m.rows {
		if len(out) == req.Limit {
			break
		}
		if bytes.Compare(row.Key, req.StartKey) < 0 {
			continue
		}
		if len(req.EndKey) > 0 && bytes.Compare(row.Key, req.EndKey) > 0 {
			break
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memTransport) limits() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.requests))
	for i, r := range m.requests {
		out[i] = r.Limit
	}
	return out
}

func (m *memTransport) starts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.requests))
	for i, r := range m.requests {
		out[i] = string(r.StartKey)
	}
	return out
}

func letters(from, to byte) []string {
	var out []string
	for c := from; c <= to; c++ {
		out = append(out, string([]byte{c}))
	}
	return out
}
