package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/widescan/internal/store"
	"github.com/eigerco/widescan/pkg/db/memory"
	"github.com/eigerco/widescan/pkg/scan"
)

const input = `{"key":"alice","columns":{"email":"alice@example.com","age":"31"}}
{"key":"bob","columns":{"email":"bob@example.com"}}

{"key":"carol","columns":{"email":"carol@example.com","age":"27"}}
{"key":"dave","columns":{"age":"45"}}
`

func newFamily(t *testing.T) *store.Family {
	t.Helper()
	ks := store.NewKeyspace("test", memory.NewKVStore())
	t.Cleanup(func() { ks.Close() }) //nolint:errcheck
	f, err := ks.Family("people")
	require.NoError(t, err)
	return f
}

func decodeRecords(t *testing.T, out []byte) []scanRecord {
	t.Helper()
	var records []scanRecord
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		var rec scanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    scan.Range
		wantErr bool
	}{
		{in: "a:z", want: scan.Range{Start: []byte("a"), End: []byte("z")}},
		{in: ":", want: scan.Range{Start: []byte{}, End: []byte{}}},
		{in: "m:", want: scan.Range{Start: []byte("m"), End: []byte{}}},
		{in: "a:b:c", want: scan.Range{Start: []byte("a"), End: []byte("b:c")}},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadRows(t *testing.T) {
	f := newFamily(t)

	n, err := loadRows(context.Background(), strings.NewReader(input), f)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	age, err := f.Get([]byte("carol"), []byte("age"))
	require.NoError(t, err)
	assert.Equal(t, "27", string(age))
}

func TestLoadRowsErrors(t *testing.T) {
	f := newFamily(t)

	n, err := loadRows(context.Background(), strings.NewReader("{\"key\":\"a\",\"columns\":{\"x\":\"1\"}}\nnot json\n"), f)
	assert.ErrorContains(t, err, "line 2")
	assert.Equal(t, 1, n)

	_, err = loadRows(context.Background(), strings.NewReader(`{"key":"","columns":{"x":"1"}}`), f)
	assert.ErrorIs(t, err, store.ErrEmptyRowKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loadRows(ctx, strings.NewReader(input), f)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanRanges(t *testing.T) {
	f := newFamily(t)
	_, err := loadRows(context.Background(), strings.NewReader(input), f)
	require.NoError(t, err)

	var out bytes.Buffer
	ranges := []scan.Range{
		{Start: []byte("alice"), End: []byte("bob")},
		{Start: []byte("c"), End: []byte{}},
	}
	require.NoError(t, scanRanges(context.Background(), f, ranges, 1, scan.ColumnNames([]byte("age")), &out))

	byRange := map[string][]string{}
	for _, rec := range decodeRecords(t, out.Bytes()) {
		assert.Equal(t, "age", rec.Column)
		byRange[rec.Range] = append(byRange[rec.Range], rec.Key+"="+rec.Value)
	}
	assert.Equal(t, map[string][]string{
		"alice:bob": {"alice=31"},
		"c:":        {"carol=27", "dave=45"},
	}, byRange)
}

func TestScanRangesInvalidPageSize(t *testing.T) {
	f := newFamily(t)
	err := scanRanges(context.Background(), f, []scan.Range{{}}, 0, scan.AllColumns(), &bytes.Buffer{})
	assert.ErrorIs(t, err, scan.ErrInvalidPageSize)
}
