package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/eigerco/widescan/pkg/db"
	"github.com/eigerco/widescan/pkg/log"
	"github.com/eigerco/widescan/pkg/scan"
)

// Keyspace groups the column families kept in one KVStore.
type Keyspace struct {
	name string
	db   db.KVStore
}

// NewKeyspace creates a keyspace over db. The keyspace owns db and closes it
// on Close.
func NewKeyspace(name string, db db.KVStore) *Keyspace {
	return &Keyspace{name: name, db: db}
}

func (k *Keyspace) Name() string {
	return k.name
}

// Family returns a handle on the column family called name. Handles hold no
// state of their own and are not retained by the keyspace. Families come
// into existence with their first write; reading one that was never written
// yields no rows.
func (k *Keyspace) Family(name string) (*Family, error) {
	if name == "" {
		return nil, ErrInvalidFamily
	}
	return &Family{
		db:     k.db,
		name:   name,
		prefix: makeKey(prefixColumn, []byte(name)),
	}, nil
}

// Families lists the names of families that have been written to, in byte order.
func (k *Keyspace) Families() ([]string, error) {
	iter, err := k.db.NewIterator([]byte{prefixFamily}, []byte{prefixFamily + 1})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var names []string
	for iter.Next() {
		names = append(names, string(iter.Key()[1:]))
	}
	return names, nil
}

func (k *Keyspace) Close() error {
	return k.db.Close()
}

// Family stores wide rows: each row key maps to a set of named columns kept
// in column name order. A Family is a scan.Transport serving range slices
// straight from the local store.
type Family struct {
	db     db.KVStore
	name   string
	prefix []byte
}

var _ scan.Transport = (*Family)(nil)

func (f *Family) Name() string {
	return f.name
}

func (f *Family) rowPrefix(row []byte) []byte {
	return appendEscaped(bytes.Clone(f.prefix), row)
}

func (f *Family) columnKey(row, name []byte) []byte {
	return append(f.rowPrefix(row), name...)
}

// splitKey extracts the row key and column name from a stored column key.
func (f *Family) splitKey(key []byte) (row, name []byte, err error) {
	if !bytes.HasPrefix(key, f.prefix) {
		return nil, nil, errMalformedKey
	}
	row, name, err = readEscaped(key[len(f.prefix):])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %x", err, key)
	}
	return row, bytes.Clone(name), nil
}

// Insert writes columns of one row atomically, replacing existing values.
func (f *Family) Insert(row []byte, columns ...scan.RawColumn) error {
	if len(row) == 0 {
		return ErrEmptyRowKey
	}

	batch := f.db.NewBatch()
	defer func() {
		if err := batch.Close(); err != nil {
			log.Store.Warn().Err(err).Str("family", f.name).Msg("close batch")
		}
	}()

	if err := batch.Put(append([]byte{prefixFamily}, f.name...), nil); err != nil {
		return fmt.Errorf("register family: %w", err)
	}
	for _, col := range columns {
		if err := batch.Put(f.columnKey(row, col.Name), col.Value); err != nil {
			return fmt.Errorf("store column %q: %w", col.Name, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Get returns the value of one column.
func (f *Family) Get(row, name []byte) ([]byte, error) {
	value, err := f.db.Get(f.columnKey(row, name))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrColumnNotFound
		}
		return nil, fmt.Errorf("get column: %w", err)
	}
	return value, nil
}

// Remove deletes one column. Removing a missing column is not an error.
func (f *Family) Remove(row, name []byte) error {
	if err := f.db.Delete(f.columnKey(row, name)); err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return nil
}

// RemoveRow deletes every column of a row in one batch.
func (f *Family) RemoveRow(row []byte) error {
	prefix := f.rowPrefix(row)
	iter, err := f.db.NewIterator(prefix, prefixEnd(prefix))
	if err != nil {
		return fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	batch := f.db.NewBatch()
	defer batch.Close()

	for iter.Next() {
		if err := batch.Delete(iter.Key()); err != nil {
			return fmt.Errorf("delete column: %w", err)
		}
	}
	return batch.Commit()
}

// RangeSlice returns up to req.Limit rows with keys in [StartKey, EndKey],
// each with the columns selected by req.Predicate. A row whose columns are
// all filtered out is still returned, with no columns, so the row count
// always reflects the keys present in the range.
func (f *Family) RangeSlice(ctx context.Context, req scan.RangeRequest) ([]scan.RowSlice, error) {
	if req.Limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, req.Limit)
	}
	if len(req.EndKey) > 0 && bytes.Compare(req.StartKey, req.EndKey) > 0 {
		return nil, fmt.Errorf("%w: %x > %x", ErrInvalidRange, req.StartKey, req.EndKey)
	}

	lower := f.rowPrefix(req.StartKey)
	upper := prefixEnd(f.prefix)
	if len(req.EndKey) > 0 {
		upper = prefixEnd(f.rowPrefix(req.EndKey))
	}

	iter, err := f.db.NewIterator(lower, upper)
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	sel := newSelector(req.Predicate)
	var rows []scan.RowSlice
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, name, err := f.splitKey(iter.Key())
		if err != nil {
			return nil, err
		}

		last := len(rows) - 1
		if last < 0 || !bytes.Equal(rows[last].Key, row) {
			if len(rows) == req.Limit {
				break
			}
			rows = append(rows, scan.RowSlice{Key: row, Columns: []scan.RawColumn{}})
			last++
		}

		if !sel.selects(name, len(rows[last].Columns)) {
			continue
		}
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read column value: %w", err)
		}
		rows[last].Columns = append(rows[last].Columns, scan.RawColumn{Name: name, Value: value})
	}

	log.Store.Debug().
		Str("family", f.name).
		Int("limit", req.Limit).
		Int("rows", len(rows)).
		Msg("range slice")

	return rows, nil
}
