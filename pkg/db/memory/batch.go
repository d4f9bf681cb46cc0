package memory

import (
	"bytes"
	"sync/atomic"

	"github.com/eigerco/widescan/pkg/db"
)

type op struct {
	key    []byte
	value  []byte
	delete bool
}

// Batch buffers writes and applies them under a single lock on Commit.
type Batch struct {
	store *KVStore
	ops   []op
	done  atomic.Bool
}

func (s *KVStore) NewBatch() db.Batch {
	return &Batch{store: s}
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: bytes.Clone(key), value: bytes.Clone(value)})
	return nil
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	b.ops = append(b.ops, op{key: bytes.Clone(key), delete: true})
	return nil
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return db.ErrBatchDone
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrClosed
	}

	b.done.Store(true)
	for _, o := range b.ops {
		if o.delete {
			s.tree.Delete(item{key: o.key})
			continue
		}
		s.tree.ReplaceOrInsert(item{key: o.key, value: o.value})
	}
	b.ops = nil
	return nil
}

func (b *Batch) Close() error {
	if b.done.CompareAndSwap(false, true) {
		b.ops = nil
	}
	return nil
}
