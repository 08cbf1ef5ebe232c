package agent

import (
	"context"
	"log"
	"sync"

	"github.com/clipsyncapp/api-clipsync/internal/model"
)

// Agent orchestrates a single device's sync: discovery, thumbnail
// generation, upload, request fulfilment and real-time message
// application all run as independent workers over the shared local
// cache. Workers are idempotent and safe to interleave; the cache's own
// transaction boundaries are the only synchronization between them.
type Agent struct {
	cache    *Cache
	client   *Client
	channel  *Channel
	requests *RequestWorker
	pull     *PullWorker
	scanner  Scanner
	thumbs   ThumbGenerator
}

// Config wires the agent's collaborators and endpoints.
type Config struct {
	BaseURL  string // REST base, e.g. http://host:8080/api/v1
	WSURL    string // channel endpoint, e.g. ws://host:8080/ws
	Cache    *Cache
	Scanner  Scanner
	Thumbs   ThumbGenerator
	ThumbDir string // where fetched peer thumbnails land

	Installation model.RegisterInstallationRequest
}

func New(cfg Config) *Agent {
	a := &Agent{
		cache:   cfg.Cache,
		scanner: cfg.Scanner,
		thumbs:  cfg.Thumbs,
	}

	registrar := NewRegistrar(cfg.Installation, func(ctx context.Context, req model.RegisterInstallationRequest) error {
		return a.client.RegisterInstallation(ctx, req)
	})
	a.client = NewClient(cfg.BaseURL, registrar, cfg.Cache)
	a.requests = NewRequestWorker(a.client, cfg.Cache)
	a.pull = NewPullWorker(a.client, cfg.Cache, cfg.ThumbDir)
	a.channel = NewChannel(cfg.WSURL, cfg.Cache, a.client, a.applyMessage)
	return a
}

// Client exposes the REST client for login flows driven by the host app.
func (a *Agent) Client() *Client {
	return a.client
}

// Run starts all workers and blocks until ctx is cancelled. It expects
// an authenticated identity in the cache; the outer driver restarts Run
// after login/logout transitions.
func (a *Agent) Run(ctx context.Context) {
	var wg sync.WaitGroup

	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	run(func() { DiscoveryWorker(ctx, a.cache, a.scanner) })
	run(func() { ThumbWorker(ctx, a.cache, a.thumbs) })
	run(func() { UploadWorker(ctx, a.cache, a.client) })
	run(func() { a.requests.Run(ctx) })
	run(func() { a.pull.Run(ctx) })
	run(func() {
		if err := a.channel.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Channel loop ended: %v", err)
		}
	})

	// Catch up on anything peers published while we were offline.
	a.pull.Wake()

	wg.Wait()
}

// applyMessage dispatches one inbound real-time frame.
func (a *Agent) applyMessage(msg model.Message) {
	switch msg.Type {
	case model.MessageTypeNotice:
		log.Printf("📣 %s", msg.Text)
	case model.MessageTypeMediaRequest:
		if msg.Request != nil {
			a.requests.Enqueue(*msg.Request)
		}
	case model.MessageTypeDevices:
		// Full snapshot, authoritative: replace the stored link name if
		// the server knows a newer one for this device.
		a.applyDevices(msg.Links)
	case model.MessageTypeDataNotification:
		a.pull.Wake()
	default:
		log.Printf("Ignoring frame with unknown type %q", msg.Type)
	}
}

func (a *Agent) applyDevices(links []model.InstallationLink) {
	installationID := a.client.registrar.InstallationID()
	for _, l := range links {
		if l.InstallationID != installationID {
			continue
		}
		if err := a.cache.db.Save(&LocalLink{ID: l.ID, AccountID: l.AccountID, Name: l.Name}).Error; err != nil {
			log.Printf("Failed to apply device snapshot: %v", err)
		}
	}
}
