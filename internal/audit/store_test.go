package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndReadBack(t *testing.T) {
	store := openTestStore(t)

	store.RecordConnect("c1", "u1")
	store.RecordDisconnect("c1", "u1", "transport closed")
	store.RecordSweep(2)

	entries, err := store.RecentEntries(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Most recent first.
	assert.Equal(t, KindSweep, entries[0].Kind)
	assert.Equal(t, "2", entries[0].Detail)
	assert.Equal(t, KindDisconnect, entries[1].Kind)
	assert.Equal(t, "transport closed", entries[1].Detail)
	assert.Equal(t, KindConnect, entries[2].Kind)
	assert.Equal(t, "c1", entries[2].ConnectionID)
	assert.Equal(t, "u1", entries[2].UserID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestRecentEntriesLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		store.RecordConnect("c1", "u1")
	}

	entries, err := store.RecentEntries(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecentEntriesEmpty(t *testing.T) {
	store := openTestStore(t)

	entries, err := store.RecentEntries(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	store, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	store.RecordConnect("c1", "u1")
	require.NoError(t, store.Close())

	reopened, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.RecentEntries(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
