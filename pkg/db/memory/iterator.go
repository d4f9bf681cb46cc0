package memory

import (
	"bytes"

	"github.com/google/btree"

	"github.com/eigerco/widescan/pkg/db"
)

// Iterator walks a copy-on-write snapshot of the tree taken at creation.
type Iterator struct {
	tree    *btree.BTreeG[item]
	start   []byte
	end     []byte
	current *item
	started bool
}

func (s *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	tree, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return &Iterator{
		tree:  tree,
		start: bytes.Clone(start),
		end:   bytes.Clone(end),
	}, nil
}

func (it *Iterator) Next() bool {
	var pivot []byte
	switch {
	case !it.started:
		it.started = true
		pivot = it.start
	case it.current == nil:
		return false
	default:
		pivot = it.current.key
	}

	var next *item
	it.tree.AscendGreaterOrEqual(item{key: pivot}, func(i item) bool {
		if it.current != nil && bytes.Equal(i.key, it.current.key) {
			return true
		}
		if it.end == nil || bytes.Compare(i.key, it.end) < 0 {
			next = &i
		}
		return false
	})
	it.current = next
	return next != nil
}

func (it *Iterator) Valid() bool {
	return it.current != nil
}

func (it *Iterator) Key() []byte {
	if it.current == nil {
		return nil
	}
	return bytes.Clone(it.current.key)
}

func (it *Iterator) Value() ([]byte, error) {
	if it.current == nil {
		return nil, db.ErrIteratorInvalid
	}
	return bytes.Clone(it.current.value), nil
}

func (it *Iterator) Close() error {
	it.tree = nil
	it.current = nil
	return nil
}
