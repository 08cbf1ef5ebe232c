package agent

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestFetchThumbPersistsAtStablePath(t *testing.T) {
	var payload atomic.Value
	payload.Store([]byte("first version"))
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /installations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /medias/{id}/{kind}/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload.Load().([]byte))
	})

	client, cache := newTestClient(t, mux)
	loggedIn(t, cache, "access", "refresh")

	thumbDir := t.TempDir()
	w := NewPullWorker(client, cache, thumbDir)
	mediaID := uuid.New()
	m := model.Media{ID: mediaID, HasThumb: true, ModifiedTime: time.Now()}

	require.NoError(t, w.fetchThumb(context.Background(), m))

	// The path is recorded in the cache and the bytes are on disk.
	path, err := cache.RemoteThumbPath(mediaID)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(thumbDir, mediaID.String()+".jpg"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("first version"), data)

	// A repeat notification overwrites in place instead of accumulating.
	payload.Store([]byte("second version"))
	require.NoError(t, w.fetchThumb(context.Background(), m))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("second version"), data)

	entries, err := os.ReadDir(thumbDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
