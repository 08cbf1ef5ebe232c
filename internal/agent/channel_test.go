package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var channelUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newChannelFixture serves both the REST refresh endpoint and the
// websocket endpoint from one server, the way the agent sees them.
func newChannelFixture(t *testing.T, mux *http.ServeMux) (*Channel, *Cache, chan model.Message) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cache := newTestCache(t)
	registrar := NewRegistrar(model.RegisterInstallationRequest{ID: uuid.New(), Name: "test"}, nil)
	client := NewClient(srv.URL, registrar, cache)
	registrar.register = func(ctx context.Context, req model.RegisterInstallationRequest) error {
		return client.RegisterInstallation(ctx, req)
	}

	received := make(chan model.Message, 16)
	ch := NewChannel("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", cache, client, func(m model.Message) {
		received <- m
	})
	ch.backoff = 10 * time.Millisecond
	return ch, cache, received
}

func TestRunRefreshesTokenOnUnauthorizedHandshake(t *testing.T) {
	var refreshes int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth_sessions/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshes, 1)
		require.Equal(t, "refresh-old", r.Header.Get(headerRefreshToken))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"access_token":"access-new","refresh_token":"refresh-new"}`))
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "access-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := channelUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notice","text":"hello"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, cache, received := newChannelFixture(t, mux)
	loggedIn(t, cache, "access-old", "refresh-old")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	// The stale token is rejected at the handshake; the loop must rotate
	// it and reconnect instead of re-dialing with it forever.
	select {
	case msg := <-received:
		require.Equal(t, model.MessageTypeNotice, msg.Type)
		require.Equal(t, "hello", msg.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("channel never connected after token rotation")
	}
	require.Equal(t, int64(1), atomic.LoadInt64(&refreshes))

	tokens, err := cache.Tokens()
	require.NoError(t, err)
	require.Equal(t, "access-new", tokens.AccessToken)
}

func TestRunStopsWhenRefreshIsRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth_sessions/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	ch, _, _ := newChannelFixture(t, mux)
	loggedIn(t, ch.cache, "stale", "stale")

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrLoggedOut)
	case <-time.After(5 * time.Second):
		t.Fatal("channel kept retrying after forced logout")
	}
}
