// Package memory implements db.KVStore as an in-process B-tree. It is meant
// for tests and throwaway keyspaces.
package memory

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/eigerco/widescan/pkg/db"
)

const degree = 32

var _ db.KVStore = (*KVStore)(nil)

type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

type KVStore struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

func NewKVStore() *KVStore {
	return &KVStore{tree: btree.NewG(degree, less)}
}

func (s *KVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, db.ErrClosed
	}

	it, ok := s.tree.Get(item{key: key})
	if !ok {
		return nil, db.ErrNotFound
	}
	return bytes.Clone(it.value), nil
}

func (s *KVStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}

	s.tree.ReplaceOrInsert(item{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (s *KVStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}

	s.tree.Delete(item{key: key})
	return nil
}

func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// snapshot returns a lazily copied tree that later writes do not affect.
func (s *KVStore) snapshot() (*btree.BTreeG[item], error) {
	// Clone mutates the copy-on-write context of the source tree.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, db.ErrClosed
	}
	return s.tree.Clone(), nil
}
