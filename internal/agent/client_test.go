package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cache := newTestCache(t)
	registrar := NewRegistrar(model.RegisterInstallationRequest{ID: uuid.New(), Name: "test"}, nil)
	client := NewClient(srv.URL, registrar, cache)
	registrar.register = func(ctx context.Context, req model.RegisterInstallationRequest) error {
		return client.RegisterInstallation(ctx, req)
	}
	return client, cache
}

func loggedIn(t *testing.T, cache *Cache, access, refresh string) {
	t.Helper()
	require.NoError(t, cache.SaveIdentity(
		LocalAccount{ID: uuid.New(), Handle: "alice"},
		LocalLink{ID: uuid.New()},
		access, refresh,
	))
}

func TestRefreshCircuitRotatesOnceOn401(t *testing.T) {
	var refreshes int
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /installations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /medias", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("POST /auth_sessions/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		require.Equal(t, "refresh-old", r.Header.Get(headerRefreshToken))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"access_token":"access-new","refresh_token":"refresh-new"}`))
	})

	client, cache := newTestClient(t, mux)
	loggedIn(t, cache, "access-old", "refresh-old")

	medias, err := client.ListMedias(context.Background())
	require.NoError(t, err)
	require.Empty(t, medias)
	require.Equal(t, 1, refreshes)

	tokens, err := cache.Tokens()
	require.NoError(t, err)
	require.Equal(t, "access-new", tokens.AccessToken)
	require.Equal(t, "refresh-new", tokens.RefreshToken)
}

func TestRejectedRefreshForcesLogout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /installations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /medias", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("POST /auth_sessions/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, cache := newTestClient(t, mux)
	loggedIn(t, cache, "stale", "stale")

	_, err := client.ListMedias(context.Background())
	require.ErrorIs(t, err, ErrLoggedOut)

	// Auth state is purged so the circuit cannot loop.
	_, err = cache.Tokens()
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMissingTokensForceLogoutWithoutRetrying(t *testing.T) {
	var hits int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.Write([]byte("{}"))
			return
		}
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.ListMedias(context.Background())
	require.ErrorIs(t, err, ErrLoggedOut)
	require.Zero(t, hits)
}

func TestEveryRequestCarriesInstallationID(t *testing.T) {
	var sawHeader bool
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /installations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /medias", func(w http.ResponseWriter, r *http.Request) {
		_, err := uuid.Parse(r.Header.Get(headerInstallationID))
		sawHeader = err == nil
		w.Write([]byte("[]"))
	})

	client, cache := newTestClient(t, mux)
	loggedIn(t, cache, "access", "refresh")

	_, err := client.ListMedias(context.Background())
	require.NoError(t, err)
	require.True(t, sawHeader)
}

func TestUploadWritesFieldsBeforeBinaryPart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /installations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("POST /medias/{id}/{kind}", func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		require.NoError(t, err)

		var order []string
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			if part.FileName() == "" {
				order = append(order, "field:"+part.FormName())
			} else {
				order = append(order, "binary")
			}
		}
		require.NotEmpty(t, order)
		require.Equal(t, "binary", order[len(order)-1])
		for _, p := range order[:len(order)-1] {
			require.Contains(t, p, "field:")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	})

	client, cache := newTestClient(t, mux)
	loggedIn(t, cache, "access", "refresh")

	m := &LocalMedia{ID: uuid.New(), Path: "/photos/a.jpg", Dir: "/photos"}
	err := client.UploadMedia(context.Background(), m, model.MediaKindFile,
		strings.NewReader("hello"), 5)
	require.NoError(t, err)
}
