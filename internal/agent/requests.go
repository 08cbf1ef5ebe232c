package agent

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// uploadRetryBackoff is the fixed wait before retrying a transiently
	// failed upload. Like the reconnect backoff, deliberately not
	// exponential.
	uploadRetryBackoff = 25 * time.Second

	// requestPollInterval is how often the worker polls the server's
	// durable queue while idle, recovering requests it missed or dropped.
	requestPollInterval = time.Minute
)

// RequestWorker fulfils MediaRequests. Requests arrive over the
// real-time channel and are also polled from the server's durable queue,
// so a dropped frame is only a delay. Transport failures are retried
// against the same request indefinitely; an unknown media id or an
// ownership mismatch is a logic error and the request is abandoned on
// the server instead.
type RequestWorker struct {
	client *Client
	cache  *Cache
	queue  chan model.MediaRequest

	backoff      time.Duration
	pollInterval time.Duration
}

func NewRequestWorker(client *Client, cache *Cache) *RequestWorker {
	return &RequestWorker{
		client:       client,
		cache:        cache,
		queue:        make(chan model.MediaRequest, 64),
		backoff:      uploadRetryBackoff,
		pollInterval: requestPollInterval,
	}
}

// Enqueue hands an inbound MediaRequest to the worker. A full queue
// drops the request; the idle poll picks it back up from the server.
func (w *RequestWorker) Enqueue(req model.MediaRequest) {
	select {
	case w.queue <- req:
	default:
		log.Printf("Request queue full, dropping request for media %s", req.MediaID)
	}
}

// Run drains the server's queue on start, then processes pushed requests
// oldest-first, re-polling the server while idle, until ctx is cancelled.
func (w *RequestWorker) Run(ctx context.Context) {
	w.drainServer(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.queue:
			w.fulfil(ctx, req)
		case <-ticker.C:
			w.drainServer(ctx)
		}
	}
}

// drainServer fulfils every outstanding request the server still holds
// for this device. Seeing the same request twice means no progress was
// made on it; it is left for the next poll rather than spun on.
func (w *RequestWorker) drainServer(ctx context.Context) {
	var last uuid.UUID
	for ctx.Err() == nil {
		req, err := w.client.NextRequest(ctx)
		if err != nil {
			if !errors.Is(err, ErrLoggedOut) {
				log.Printf("Failed to poll request queue: %v", err)
			}
			return
		}
		if req == nil || req.ID == last {
			return
		}
		last = req.ID
		w.fulfil(ctx, *req)
	}
}

// fulfil uploads the requested media's file blob, retrying the same
// request on transient failure until it lands or ctx is cancelled. A
// request this device can never satisfy is abandoned on the server.
func (w *RequestWorker) fulfil(ctx context.Context, req model.MediaRequest) {
	for {
		m, err := w.cache.FindMedia(req.MediaID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Abandoning request for unknown media %s", req.MediaID)
				w.abandon(ctx, req.MediaID)
				return
			}
			log.Printf("Failed to load media %s: %v", req.MediaID, err)
			return
		}

		err = w.uploadFile(ctx, m)
		if err == nil {
			log.Printf("📤 Fulfilled request for media %s", req.MediaID)
			return
		}
		if !IsTransient(err) {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
				// Blob already landed, the request is satisfied.
				return
			}
			log.Printf("Abandoning request for media %s: %v", req.MediaID, err)
			w.abandon(ctx, req.MediaID)
			return
		}

		log.Printf("Upload for media %s failed: %v (retrying in %s)", req.MediaID, err, w.backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff):
		}
	}
}

// abandon clears the server-side rows so the request is not re-served on
// the next poll.
func (w *RequestWorker) abandon(ctx context.Context, mediaID uuid.UUID) {
	if err := w.client.AbandonRequest(ctx, mediaID); err != nil && !errors.Is(err, ErrLoggedOut) {
		log.Printf("Failed to abandon request for media %s: %v", mediaID, err)
	}
}

func (w *RequestWorker) uploadFile(ctx context.Context, m *LocalMedia) error {
	f, err := os.Open(m.Path)
	if err != nil {
		return &APIError{Status: http.StatusUnprocessableEntity, Body: "source file missing"}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return w.client.UploadMedia(ctx, m, model.MediaKindFile, f, info.Size())
}
