package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// reconnectBackoff is the fixed wait between connection attempts.
// Deliberately not exponential: the server survives a reconnect
// stampede and media freshness matters more than connection thrift.
const reconnectBackoff = 10 * time.Second

// errDialUnauthorized marks a handshake rejected for a bad access token,
// as opposed to a transport failure.
var errDialUnauthorized = errors.New("channel handshake unauthorized")

// Channel maintains the device's real-time connection: one reconnect
// loop per authenticated identity. Inbound frames are handed to the
// message handler; the Devices snapshot sent on every (re)connect is
// authoritative and supersedes any stale state the handler holds.
type Channel struct {
	wsURL   string
	cache   *Cache
	client  *Client
	handler func(model.Message)

	backoff time.Duration
}

func NewChannel(wsURL string, cache *Cache, client *Client, handler func(model.Message)) *Channel {
	return &Channel{
		wsURL:   wsURL,
		cache:   cache,
		client:  client,
		handler: handler,
		backoff: reconnectBackoff,
	}
}

// Run loops: connect, process inbound frames until the socket errors,
// wait, retry. It returns when ctx is cancelled (closing any open
// socket, no further attempts) or when the identity is gone. An outer
// driver restarts it when the account changes again.
func (ch *Channel) Run(ctx context.Context) error {
	for {
		tokens, err := ch.cache.Tokens()
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoggedOut
			}
			return err
		}

		if err := ch.connectAndServe(ctx, tokens.AccessToken); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("🔌 Channel disconnected: %v (retrying in %s)", err, ch.backoff)

			// An idle device generates no REST traffic, so the client's
			// 401 circuit never runs for it. Rotate here, or the loop
			// would re-dial with the expired token forever.
			if errors.Is(err, errDialUnauthorized) {
				if err := ch.client.refreshTokens(ctx); err != nil {
					if errors.Is(err, ErrLoggedOut) {
						return err
					}
					log.Printf("Failed to refresh channel token: %v", err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ch.backoff):
		}
	}
}

// connectAndServe runs one connection lifetime: dial, then block reading
// frames until the socket fails or ctx is cancelled.
func (ch *Channel) connectAndServe(ctx context.Context, accessToken string) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, ch.wsURL+"?token="+accessToken, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return errDialUnauthorized
		}
		return err
	}
	defer conn.Close()

	log.Println("🔌 Channel connected")

	// Cancellation must close the socket so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Error parsing channel frame: %v", err)
			continue
		}
		ch.handler(msg)
	}
}
