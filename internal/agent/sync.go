package agent

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"gorm.io/gorm"
)

const (
	// How often the discovery worker rescans when nothing changed
	discoveryInterval = 5 * time.Minute

	// Idle poll interval of the state-machine workers
	workerIdleWait = 5 * time.Second
)

// DiscoveryWorker walks the scanner's results into the local cache.
// Re-runs are harmless: known paths are skipped.
func DiscoveryWorker(ctx context.Context, cache *Cache, scanner Scanner) {
	for {
		files, err := scanner.Scan(ctx)
		if err != nil {
			log.Printf("Scan failed: %v", err)
		}
		for _, f := range files {
			if err := cache.UpsertDiscovered(f); err != nil {
				log.Printf("Failed to record %s: %v", f.Path, err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(discoveryInterval):
		}
	}
}

// ThumbWorker generates thumbnails for pending media, moving each row
// to generated or parking it as gen_failed.
func ThumbWorker(ctx context.Context, cache *Cache, gen ThumbGenerator) {
	for {
		m, err := cache.NextInState(SyncStatePending)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Failed to load pending media: %v", err)
			}
			if !sleep(ctx, workerIdleWait) {
				return
			}
			continue
		}

		thumbPath, err := gen.Generate(ctx, m.Path)
		if err != nil {
			log.Printf("Thumbnail generation failed for %s: %v", m.Path, err)
			if err := cache.MarkGenFailed(m.ID); err != nil {
				log.Printf("Failed to park media %s: %v", m.ID, err)
			}
			continue
		}
		if err := cache.MarkGenerated(m.ID, thumbPath); err != nil {
			log.Printf("Failed to advance media %s: %v", m.ID, err)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// UploadWorker pushes generated media to the server (thumb then file)
// and marks it synced. A transient failure bumps the retry counter and
// backs off; success resets it. A 409 for a kind means that blob already
// landed, which satisfies this worker just as well.
func UploadWorker(ctx context.Context, cache *Cache, client *Client) {
	for {
		m, err := cache.NextInState(SyncStateGenerated)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Failed to load generated media: %v", err)
			}
			if !sleep(ctx, workerIdleWait) {
				return
			}
			continue
		}

		err = syncOne(ctx, client, m)
		if err == nil {
			if err := cache.MarkSynced(m.ID); err != nil {
				log.Printf("Failed to mark media %s synced: %v", m.ID, err)
			}
			continue
		}
		if errors.Is(err, ErrLoggedOut) {
			return
		}
		if !IsTransient(err) {
			log.Printf("Upload of media %s rejected: %v", m.ID, err)
			if err := cache.MarkGenFailed(m.ID); err != nil {
				log.Printf("Failed to park media %s: %v", m.ID, err)
			}
			continue
		}

		log.Printf("Upload of media %s failed: %v (retrying in %s)", m.ID, err, uploadRetryBackoff)
		if err := cache.BumpRetries(m.ID); err != nil {
			log.Printf("Failed to bump retries for media %s: %v", m.ID, err)
		}
		if !sleep(ctx, uploadRetryBackoff) {
			return
		}
	}
}

// syncOne uploads both blobs of one media. Each stream is single-attempt;
// the worker owns retries.
func syncOne(ctx context.Context, client *Client, m *LocalMedia) error {
	if err := uploadKind(ctx, client, m, model.MediaKindThumb, m.ThumbPath); err != nil {
		return err
	}
	return uploadKind(ctx, client, m, model.MediaKindFile, m.Path)
}

func uploadKind(ctx context.Context, client *Client, m *LocalMedia, kind model.MediaKind, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &APIError{Status: http.StatusUnprocessableEntity, Body: "source file missing"}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	err = client.UploadMedia(ctx, m, kind, f, info.Size())
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// PullWorker applies DataNotifications: re-pull the scoped listing,
// fetch the thumbs this device is missing, and acknowledge them.
// Fetched thumbs land at a deterministic path under thumbDir, recorded
// in the cache, so repeat notifications overwrite instead of piling up.
type PullWorker struct {
	client   *Client
	cache    *Cache
	thumbDir string
	wake     chan struct{}
}

func NewPullWorker(client *Client, cache *Cache, thumbDir string) *PullWorker {
	return &PullWorker{
		client:   client,
		cache:    cache,
		thumbDir: thumbDir,
		wake:     make(chan struct{}, 1),
	}
}

// Wake nudges the worker; coalesces while a pull is in progress.
func (w *PullWorker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run waits for wake-ups and pulls whatever peers published.
func (w *PullWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		medias, err := w.client.ListMedias(ctx)
		if err != nil {
			if errors.Is(err, ErrLoggedOut) {
				return
			}
			log.Printf("Failed to pull listing: %v", err)
			continue
		}

		for _, m := range medias {
			if !m.HasThumb {
				continue
			}
			if err := w.fetchThumb(ctx, m); err != nil {
				log.Printf("Failed to fetch thumb for %s: %v", m.ID, err)
				continue
			}
			ack := true
			if err := w.client.SaveReceipt(ctx, m.ID, &ack, nil); err != nil {
				log.Printf("Failed to acknowledge %s: %v", m.ID, err)
			}
		}
	}
}

func (w *PullWorker) fetchThumb(ctx context.Context, m model.Media) error {
	body, err := w.client.FetchRaw(ctx, m.ID, model.MediaKindThumb)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(w.thumbDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(w.thumbDir, m.ID.String()+".jpg")

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.ReadFrom(body); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return w.cache.SaveRemoteThumb(m.ID, path)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
