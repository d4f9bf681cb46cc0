package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/widescan/pkg/db"
	"github.com/eigerco/widescan/pkg/db/dbtest"
)

func TestKVStore(t *testing.T) {
	dbtest.Run(t, func(t *testing.T) db.KVStore {
		store, err := NewKVStore()
		require.NoError(t, err)
		return store
	})
}

func TestOpenPersists(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("row"), []byte("kept")))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	value, err := reopened.Get([]byte("row"))
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), value)
}
