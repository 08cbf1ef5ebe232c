package service

import (
	"sync"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
)

// UploadLocks enforces at-most-one in-flight upload per (media, kind).
// Acquire is an atomic insert-if-absent; a losing concurrent request is
// rejected outright rather than queued. Callers must Release in a defer
// so a failing handler never leaks the lock.
type UploadLocks struct {
	active sync.Map // "mediaID/kind" -> struct{}
}

func NewUploadLocks() *UploadLocks {
	return &UploadLocks{}
}

func lockKey(mediaID uuid.UUID, kind model.MediaKind) string {
	return mediaID.String() + "/" + string(kind)
}

// Acquire takes the exclusive upload slot for the key. Returns false if
// another upload for the same (media, kind) is already in flight.
func (l *UploadLocks) Acquire(mediaID uuid.UUID, kind model.MediaKind) bool {
	_, loaded := l.active.LoadOrStore(lockKey(mediaID, kind), struct{}{})
	return !loaded
}

// Release frees the slot. Safe to call for a key that was never acquired.
func (l *UploadLocks) Release(mediaID uuid.UUID, kind model.MediaKind) {
	l.active.Delete(lockKey(mediaID, kind))
}
