package badger

import (
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/widescan/pkg/db"
)

// Batch is a read-write badger transaction. Writes become visible together
// on Commit.
type Batch struct {
	store *KVStore
	txn   *badger.Txn
	done  atomic.Bool
}

func (s *KVStore) NewBatch() db.Batch {
	return &Batch{
		store: s,
		txn:   s.db.NewTransaction(true),
	}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	return b.txn.Set(key, value)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	return b.txn.Delete(key)
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return db.ErrBatchDone
	}

	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	if b.store.closed {
		return db.ErrClosed
	}

	b.done.Store(true)
	return b.txn.Commit()
}

func (b *Batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	b.txn.Discard()
	return nil
}
