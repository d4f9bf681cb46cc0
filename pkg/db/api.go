package db

// KVStore is a sorted byte-keyed store. Keys are ordered by bytes.Compare and
// iterators visit them in that order.
type KVStore interface {
	Writer
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewBatch() Batch
	// NewIterator returns an iterator over [start, end). A nil start begins at
	// the first key, a nil end runs to the last one.
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch groups writes that are applied atomically on Commit.
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator walks a key range in ascending order. It starts unpositioned: the
// first call to Next moves it onto the first key. Keys and values returned
// are copies owned by the caller.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
