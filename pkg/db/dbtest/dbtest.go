// Package dbtest holds the behaviour every db.KVStore backend must share.
package dbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/widescan/pkg/db"
)

// Opener returns a fresh, empty store for one sub-test.
type Opener func(t *testing.T) db.KVStore

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "basic_put_get", fn: testBasicPutGet},
		{name: "delete_operations", fn: testDelete},
		{name: "store_closure", fn: testStoreClosure},
		{name: "basic_batch_operations", fn: testBasicBatchOperations},
		{name: "batch_commit_closure", fn: testBatchCommitAndClose},
		{name: "batch_discard", fn: testBatchDiscard},
		{name: "full_range_iteration", fn: testFullRangeIteration},
		{name: "bounded_range_iteration", fn: testBoundedRangeIteration},
		{name: "iterator_validity", fn: testIteratorValidity},
		{name: "iterator_stays_exhausted", fn: testIteratorStaysExhausted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := open(t)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func put(t *testing.T, store db.KVStore, pairs ...string) {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, store.Put([]byte(pairs[i]), []byte(pairs[i+1])))
	}
}

func drain(t *testing.T, iter db.Iterator) []string {
	t.Helper()
	var out []string
	for iter.Next() {
		value, err := iter.Value()
		require.NoError(t, err)
		out = append(out, string(iter.Key())+"="+string(value))
	}
	return out
}

func testBasicPutGet(t *testing.T, store db.KVStore) {
	key := []byte("test-key")
	value := []byte("test-value")

	require.NoError(t, store.Put(key, value))

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	// overwrite
	require.NoError(t, store.Put(key, []byte("other")))
	retrieved, err = store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), retrieved)

	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testDelete(t *testing.T, store db.KVStore) {
	key := []byte("delete-test")

	require.NoError(t, store.Put(key, []byte("to-be-deleted")))
	require.NoError(t, store.Delete(key))

	_, err := store.Get(key)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Delete non-existent key should not error
	assert.NoError(t, store.Delete([]byte("non-existent")))
}

func testStoreClosure(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Close())

	_, err := store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrClosed)

	err = store.Put([]byte("key"), []byte("value"))
	assert.ErrorIs(t, err, db.ErrClosed)

	err = store.Delete([]byte("key"))
	assert.ErrorIs(t, err, db.ErrClosed)

	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, db.ErrClosed)

	// Double close should not error
	assert.NoError(t, store.Close())
}

func testBasicBatchOperations(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	defer batch.Close() //nolint:errcheck

	keys := [][]byte{[]byte("key1"), []byte("key2"), []byte("key3")}
	values := [][]byte{[]byte("value1"), []byte("value2"), []byte("value3")}

	for i := range keys {
		require.NoError(t, batch.Put(keys[i], values[i]))
	}
	require.NoError(t, batch.Delete(keys[1]))

	// nothing is visible before commit
	_, err := store.Get(keys[0])
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, batch.Commit())

	val1, err := store.Get(keys[0])
	require.NoError(t, err)
	assert.Equal(t, values[0], val1)

	_, err = store.Get(keys[1])
	assert.ErrorIs(t, err, db.ErrNotFound)

	val3, err := store.Get(keys[2])
	require.NoError(t, err)
	assert.Equal(t, values[2], val3)
}

func testBatchCommitAndClose(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()

	require.NoError(t, batch.Put([]byte("key"), []byte("value")))
	require.NoError(t, batch.Commit())

	// Operations after commit should fail
	assert.ErrorIs(t, batch.Put([]byte("key2"), []byte("value2")), db.ErrBatchDone)
	assert.ErrorIs(t, batch.Delete([]byte("key2")), db.ErrBatchDone)
	assert.ErrorIs(t, batch.Commit(), db.ErrBatchDone)

	assert.NoError(t, batch.Close())
	assert.NoError(t, batch.Close())
}

func testBatchDiscard(t *testing.T, store db.KVStore) {
	batch := store.NewBatch()
	require.NoError(t, batch.Put([]byte("key"), []byte("value")))
	require.NoError(t, batch.Close())

	_, err := store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.ErrorIs(t, batch.Commit(), db.ErrBatchDone)
}

func testFullRangeIteration(t *testing.T, store db.KVStore) {
	put(t, store, "d", "value-d", "b", "value-b", "a", "value-a", "c", "value-c")

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	assert.Equal(t, []string{"a=value-a", "b=value-b", "c=value-c", "d=value-d"}, drain(t, iter))
}

func testBoundedRangeIteration(t *testing.T, store db.KVStore) {
	put(t, store, "a", "value-a", "b", "value-b", "c", "value-c", "d", "value-d", "e", "value-e")

	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	assert.Equal(t, []string{"b=value-b", "c=value-c", "d=value-d"}, drain(t, iter))

	lower, err := store.NewIterator([]byte("c"), nil)
	require.NoError(t, err)
	defer lower.Close() //nolint:errcheck
	assert.Equal(t, []string{"c=value-c", "d=value-d", "e=value-e"}, drain(t, lower))

	upper, err := store.NewIterator(nil, []byte("b\x00"))
	require.NoError(t, err)
	defer upper.Close() //nolint:errcheck
	assert.Equal(t, []string{"a=value-a", "b=value-b"}, drain(t, upper))
}

func testIteratorValidity(t *testing.T, store db.KVStore) {
	put(t, store, "key1", "value1", "key2", "value2")

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	// Initial state - iterator is not positioned
	assert.False(t, iter.Valid())
	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)

	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte("key1"), iter.Key())

	assert.True(t, iter.Next())
	assert.Equal(t, []byte("key2"), iter.Key())
	val, err := iter.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("value2"), val)

	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())

	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)
}

func testIteratorStaysExhausted(t *testing.T, store db.KVStore) {
	put(t, store, "only", "one")

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	assert.True(t, iter.Next())
	assert.False(t, iter.Next())
	// an exhausted iterator must not rewind
	assert.False(t, iter.Next())

	empty, err := store.NewIterator([]byte("x"), []byte("y"))
	require.NoError(t, err)
	defer empty.Close() //nolint:errcheck
	assert.False(t, empty.Next())
	assert.False(t, empty.Next())
}
