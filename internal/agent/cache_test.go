package agent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	return c
}

func TestDiscoveryIsIdempotentPerPath(t *testing.T) {
	c := newTestCache(t)

	f := ScannedFile{Path: "/photos/a.jpg", Dir: "/photos", Size: 10, ModifiedTime: time.Now()}
	require.NoError(t, c.UpsertDiscovered(f))

	// Re-scan of the same path must not duplicate or reset state.
	m, err := c.NextInState(SyncStatePending)
	require.NoError(t, err)
	require.NoError(t, c.MarkGenFailed(m.ID))

	require.NoError(t, c.UpsertDiscovered(f))

	_, err = c.NextInState(SyncStatePending)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStateTransitions(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.UpsertDiscovered(ScannedFile{
		Path: "/photos/a.jpg", Dir: "/photos", Size: 10, ModifiedTime: time.Now(),
	}))

	m, err := c.NextInState(SyncStatePending)
	require.NoError(t, err)

	require.NoError(t, c.MarkGenerated(m.ID, "/thumbs/a.jpg"))
	m, err = c.NextInState(SyncStateGenerated)
	require.NoError(t, err)
	require.Equal(t, "/thumbs/a.jpg", m.ThumbPath)

	require.NoError(t, c.BumpRetries(m.ID))
	require.NoError(t, c.BumpRetries(m.ID))
	m, err = c.FindMedia(m.ID)
	require.NoError(t, err)
	require.Equal(t, 2, m.Retries)
	require.Equal(t, SyncStateGenerated, m.State) // retries leave the state alone

	// Success resets the counter.
	require.NoError(t, c.MarkSynced(m.ID))
	m, err = c.FindMedia(m.ID)
	require.NoError(t, err)
	require.Equal(t, SyncStateSynced, m.State)
	require.Equal(t, 0, m.Retries)
}

func TestPurgeAuthKeepsMedia(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.UpsertDiscovered(ScannedFile{
		Path: "/photos/a.jpg", Dir: "/photos", Size: 10, ModifiedTime: time.Now(),
	}))
	require.NoError(t, c.SaveIdentity(
		LocalAccount{ID: uuid.New(), Handle: "alice"},
		LocalLink{ID: uuid.New()},
		"access", "refresh",
	))

	require.NoError(t, c.PurgeAuth())

	_, err := c.Tokens()
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = c.Account()
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Media survives a forced logout.
	_, err = c.NextInState(SyncStatePending)
	require.NoError(t, err)
}
