package badger

import (
	"bytes"

	"github.com/dgraph-io/badger/v4"

	"github.com/eigerco/widescan/pkg/db"
)

// Iterator reads from a read-only transaction opened when the iterator was
// created, so it sees a consistent snapshot.
type Iterator struct {
	txn     *badger.Txn
	iter    *badger.Iterator
	start   []byte
	end     []byte
	started bool
}

func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	txn := s.db.NewTransaction(false)
	return &Iterator{
		txn:   txn,
		iter:  txn.NewIterator(badger.DefaultIteratorOptions),
		start: start,
		end:   end,
	}, nil
}

func (it *Iterator) Next() bool {
	if !it.started {
		it.started = true
		it.iter.Seek(it.start)
		return it.Valid()
	}
	if !it.Valid() {
		return false
	}
	it.iter.Next()
	return it.Valid()
}

func (it *Iterator) Valid() bool {
	if !it.started || !it.iter.Valid() {
		return false
	}
	if it.end != nil && bytes.Compare(it.iter.Item().Key(), it.end) >= 0 {
		return false
	}
	return true
}

func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.iter.Item().KeyCopy(nil)
}

func (it *Iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, db.ErrIteratorInvalid
	}
	return it.iter.Item().ValueCopy(nil)
}

func (it *Iterator) Close() error {
	it.iter.Close()
	it.txn.Discard()
	return nil
}
