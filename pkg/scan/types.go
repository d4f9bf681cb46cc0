package scan

import (
	"context"

	"github.com/eigerco/widescan/pkg/codec"
)

// Range bounds a scan. Both ends are inclusive and compared as raw bytes in
// store order. An empty End runs to the end of the column family.
type Range struct {
	Start []byte
	End   []byte
}

// RawColumn is one column of a row exactly as the store returned it.
type RawColumn struct {
	Name  []byte
	Value []byte
}

// RowSlice is a row key with its selected columns, in column name order.
type RowSlice struct {
	Key     []byte
	Columns []RawColumn
}

// Predicate selects the columns returned for each row. When Names is set
// only those columns are returned. Otherwise columns whose names fall in
// [Start, Finish] are returned, an empty bound being open, and Count caps the
// number of columns per row when positive.
//
// Cursors carry the predicate unchanged; only transports interpret it.
type Predicate struct {
	Names  [][]byte
	Start  []byte
	Finish []byte
	Count  int
}

// AllColumns selects every column of every row.
func AllColumns() Predicate {
	return Predicate{}
}

// ColumnNames selects the named columns.
func ColumnNames(names ...[]byte) Predicate {
	return Predicate{Names: names}
}

// ColumnRange selects up to count columns (0 for all) named within [start, finish].
func ColumnRange(start, finish []byte, count int) Predicate {
	return Predicate{Start: start, Finish: finish, Count: count}
}

// RangeRequest is a single bounded range-slice call.
type RangeRequest struct {
	StartKey  []byte
	EndKey    []byte
	Limit     int
	Predicate Predicate
}

// Transport executes one range-slice request. Rows come back in ascending key
// order, including StartKey and EndKey when present. Fewer than Limit rows
// means the range is exhausted.
type Transport interface {
	RangeSlice(ctx context.Context, req RangeRequest) ([]RowSlice, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req RangeRequest) ([]RowSlice, error)

func (f TransportFunc) RangeSlice(ctx context.Context, req RangeRequest) ([]RowSlice, error) {
	return f(ctx, req)
}

// Codecs decode the row keys, column names and column values of a scan.
type Codecs[K, N, V any] struct {
	Key   codec.Codec[K]
	Name  codec.Codec[N]
	Value codec.Codec[V]
}

// RawCodecs leaves keys, names and values as bytes.
func RawCodecs() Codecs[[]byte, []byte, []byte] {
	return Codecs[[]byte, []byte, []byte]{Key: codec.Bytes, Name: codec.Bytes, Value: codec.Bytes}
}

type Column[N, V any] struct {
	Name  N
	Value V
}

// Pair is one decoded column together with the key of its row.
type Pair[K, N, V any] struct {
	Key    K
	Column Column[N, V]
}
