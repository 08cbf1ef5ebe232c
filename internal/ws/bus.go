package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisChannel = "clipsync:bus"

// Bus is the per-account broadcast entity. Every connection of the
// account subscribes to it and receives everything published; inbound
// frames from any connection are republished to all subscribers.
// A reference count tracks live connections so the bus survives
// reconnect races and is torn down only at zero.
type Bus struct {
	AccountID uuid.UUID

	mu          sync.Mutex
	subscribers map[*Conn]bool
	refs        int
}

func (b *Bus) subscribe(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[c] = true
}

func (b *Bus) unsubscribe(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[c]; ok {
		delete(b.subscribers, c)
		close(c.send)
	}
}

// deliver fans a frame out to every local subscriber. A subscriber whose
// send buffer is full is dropped rather than allowed to stall the bus.
func (b *Bus) deliver(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subscribers {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(b.subscribers, c)
		}
	}
}

// send queues a frame on one subscriber. Membership is checked under the
// same lock that owns the channel's close, so a connection the bus
// dropped concurrently is a no-op here, never a send on a closed channel.
func (b *Bus) send(c *Conn, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		close(c.send)
		delete(b.subscribers, c)
	}
}

// Registry holds one Bus per account with atomic get-or-create and
// release-at-zero semantics. No lock spans unrelated accounts beyond the
// map operations themselves.
type Registry struct {
	mu    sync.Mutex
	buses map[uuid.UUID]*Bus
	rdb   *redis.Client
}

// NewRegistry creates the bus registry. rdb may be nil, in which case
// delivery is local to this instance only.
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		buses: make(map[uuid.UUID]*Bus),
		rdb:   rdb,
	}
}

// Acquire returns the account's bus, creating it on first connect,
// and increments its refcount.
func (r *Registry) Acquire(accountID uuid.UUID) *Bus {
	r.mu.Lock()
	defer r.mu.Unlock()
	bus, ok := r.buses[accountID]
	if !ok {
		bus = &Bus{
			AccountID:   accountID,
			subscribers: make(map[*Conn]bool),
		}
		r.buses[accountID] = bus
	}
	bus.refs++
	return bus
}

// Release decrements the bus refcount, removing the connection's
// subscription, and deletes the bus entry when the count reaches zero.
// Other devices sharing the bus are unaffected.
func (r *Registry) Release(bus *Bus, c *Conn) {
	bus.unsubscribe(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	bus.refs--
	if bus.refs <= 0 {
		delete(r.buses, bus.AccountID)
	}
}

// envelope wraps a frame with its account for cross-instance routing
type envelope struct {
	AccountID uuid.UUID      `json:"account_id"`
	Message   *model.Message `json:"message"`
}

// PublishToAccount sends a message to every connection of the account.
// With Redis configured it goes through pub/sub so all instances deliver;
// otherwise it is delivered to local subscribers directly.
func (r *Registry) PublishToAccount(accountID uuid.UUID, msg *model.Message) {
	if r.rdb != nil {
		data, err := json.Marshal(envelope{AccountID: accountID, Message: msg})
		if err != nil {
			log.Printf("Error marshaling bus envelope: %v", err)
			return
		}
		if err := r.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
			log.Printf("Error publishing to Redis: %v", err)
		}
		return
	}
	r.deliverLocal(accountID, msg)
}

func (r *Registry) deliverLocal(accountID uuid.UUID, msg *model.Message) {
	r.mu.Lock()
	bus, ok := r.buses[accountID]
	r.mu.Unlock()
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling bus message: %v", err)
		return
	}
	bus.deliver(data)
}

// SendToConn queues a message on a single connection without fanning out
// to the rest of the account. Used for the Devices snapshot and
// dev-convenience requests on connect.
func (r *Registry) SendToConn(c *Conn, msg *model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}
	c.bus.send(c, data)
}

// Run subscribes to Redis and delivers cross-instance frames to local
// buses. Returns immediately when Redis is not configured.
func (r *Registry) Run(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	pubsub := r.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis bus subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Error unmarshaling Redis bus frame: %v", err)
				continue
			}
			if env.Message != nil {
				r.deliverLocal(env.AccountID, env.Message)
			}
		}
	}
}
