package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Ping interval; the connection is considered dead if no pong
	// arrives within pongWait
	pingPeriod = 15 * time.Second
	pongWait   = 20 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Conn is a single device's real-time connection
type Conn struct {
	bus  *Bus
	conn *websocket.Conn
	send chan []byte

	AccountID      uuid.UUID
	InstallationID uuid.UUID
	LinkID         uuid.UUID
}

// NewConn wraps an upgraded websocket for a device
func NewConn(bus *Bus, conn *websocket.Conn, accountID, installationID, linkID uuid.UUID) *Conn {
	c := &Conn{
		bus:            bus,
		conn:           conn,
		send:           make(chan []byte, 256),
		AccountID:      accountID,
		InstallationID: installationID,
		LinkID:         linkID,
	}
	bus.subscribe(c)
	return c
}

// MessageHandler processes one inbound frame from a device
type MessageHandler func(c *Conn, msg model.Message)

// ReadPump reads inbound frames until the socket fails, dispatching each
// through the handler. On exit it closes the socket with a reason, which
// also terminates the WritePump, and the caller releases the bus ref.
func (c *Conn) ReadPump(handler MessageHandler, onClose func(reason string)) {
	defer func() {
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "read failed"),
				time.Now().Add(writeWait))
			if onClose != nil {
				onClose(err.Error())
			}
			return
		}

		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Error parsing channel frame: %v", err)
			continue
		}

		if handler != nil {
			handler(c, msg)
		}
	}
}

// WritePump forwards everything from the bus to the socket and keeps the
// connection alive with pings. One websocket message per queued frame,
// so readers can unmarshal each message as a single JSON object; within
// a connection, send order is preserved.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Bus dropped this subscriber
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
