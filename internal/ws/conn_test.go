package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialTestBus stands up a server that upgrades the connection, queues the
// given messages before the write pump starts draining (the shape of the
// connect sequence, where the snapshot and a dev request are queued
// back-to-back), and then pumps.
func dialTestBus(t *testing.T, queued ...*model.Message) *websocket.Conn {
	t.Helper()
	registry := NewRegistry(nil)
	accountID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		bus := registry.Acquire(accountID)
		conn := NewConn(bus, wsConn, accountID, uuid.New(), uuid.New())
		for _, msg := range queued {
			registry.SendToConn(conn, msg)
		}
		go conn.WritePump()
		conn.ReadPump(nil, nil)
		registry.Release(bus, conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWritePumpSendsOneFramePerMessage(t *testing.T) {
	client := dialTestBus(t,
		model.DevicesMessage(nil),
		model.NoticeMessage("hello"),
	)

	// Both messages were queued before the pump drained; each must still
	// arrive as its own frame holding exactly one JSON object.
	wantTypes := []model.MessageType{model.MessageTypeDevices, model.MessageTypeNotice}
	for _, want := range wantTypes {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)

		var msg model.Message
		require.NoError(t, json.Unmarshal(data, &msg), "frame is not a single JSON object: %q", data)
		require.Equal(t, want, msg.Type)
	}
}

func TestConnectSequenceSurvivesRoundTrip(t *testing.T) {
	links := []model.InstallationLink{{ID: uuid.New(), InstallationID: uuid.New(), AccountID: uuid.New()}}
	client := dialTestBus(t, model.DevicesMessage(links))

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var msg model.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, model.MessageTypeDevices, msg.Type)
	require.Len(t, msg.Links, 1)
	require.Equal(t, links[0].ID, msg.Links[0].ID)
}
