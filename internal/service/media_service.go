package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/internal/repository"
	"github.com/clipsyncapp/api-clipsync/pkg/notification"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountPublisher pushes a real-time message to every connection of an
// account. Implemented by ws.Registry.
type AccountPublisher interface {
	PublishToAccount(accountID uuid.UUID, msg *model.Message)
}

// MediaService is the ledger: media metadata, completeness flags,
// receipts, and the notifications that fan out when state changes.
type MediaService struct {
	mediaRepo   *repository.MediaRepository
	requestRepo *repository.RequestRepository
	instRepo    *repository.InstallationRepository
	publisher   AccountPublisher
	push        *notification.Service
}

func NewMediaService(
	mediaRepo *repository.MediaRepository,
	requestRepo *repository.RequestRepository,
	instRepo *repository.InstallationRepository,
	publisher AccountPublisher,
	push *notification.Service,
) *MediaService {
	return &MediaService{
		mediaRepo:   mediaRepo,
		requestRepo: requestRepo,
		instRepo:    instRepo,
		publisher:   publisher,
		push:        push,
	}
}

// ListMedias returns the scoped visibility listing, or everything when
// all is set (debug path).
func (s *MediaService) ListMedias(accountID, linkID uuid.UUID, all bool) ([]model.Media, error) {
	if all {
		return s.mediaRepo.ListAll()
	}
	return s.mediaRepo.ListVisible(accountID, linkID)
}

// GetMedia returns a media row or ErrNotFound
func (s *MediaService) GetMedia(id uuid.UUID) (*model.Media, error) {
	m, err := s.mediaRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// VisibleToAccount reports whether the media belongs to one of the
// account's devices. Raw blob fetches are gated on this.
func (s *MediaService) VisibleToAccount(mediaID, accountID uuid.UUID) (bool, error) {
	return s.mediaRepo.VisibleToAccount(mediaID, accountID)
}

// CheckUploadAllowed gates an upload before the body is accepted. For an
// existing row the caller must be the owning installation and the flag for
// the kind must not be set yet (metadata re-submission stays idempotent in
// the ledger, but a completed blob is never overwritten).
func (s *MediaService) CheckUploadAllowed(mediaID, installationID uuid.UUID, kind model.MediaKind) error {
	m, err := s.mediaRepo.FindByID(mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // first upload creates the row
		}
		return err
	}
	if m.InstallationID != installationID {
		return ErrForbidden
	}
	if (kind == model.MediaKindFile && m.HasFile) || (kind == model.MediaKindThumb && m.HasThumb) {
		return ErrConflict
	}
	return nil
}

// DataAddedParams carries the multipart metadata fields of an upload.
type DataAddedParams struct {
	MediaID        uuid.UUID
	Path           string
	Dir            string
	CreatedTime    *time.Time
	ModifiedTime   time.Time
	Size           int64
	MediaType      string
	InstallationID uuid.UUID
}

// RecordDataAdded flips the completeness flag for the kind (creating the
// row on first contact), clears any fulfilled MediaRequest, and notifies
// the account's other devices over the bus and FCM.
func (s *MediaService) RecordDataAdded(accountID uuid.UUID, p DataAddedParams, kind model.MediaKind) (*model.Media, error) {
	m := &model.Media{
		ID:             p.MediaID,
		Path:           p.Path,
		Dir:            p.Dir,
		CreatedTime:    p.CreatedTime,
		ModifiedTime:   p.ModifiedTime,
		Size:           p.Size,
		MediaType:      p.MediaType,
		InstallationID: p.InstallationID,
	}
	saved, err := s.mediaRepo.RecordDataAdded(m, kind)
	if err != nil {
		return nil, err
	}

	if err := s.requestRepo.DeleteFulfilled(saved.ID, p.InstallationID); err != nil {
		log.Printf("failed to clear fulfilled requests for media %s: %v", saved.ID, err)
	}

	s.notifyDataAdded(accountID, saved)
	return saved, nil
}

// SaveReceipt records the consuming device's acknowledgment
func (s *MediaService) SaveReceipt(mediaID, linkID uuid.UUID, req model.SaveReceiptRequest) (*model.MediaReceipt, error) {
	if _, err := s.mediaRepo.FindByID(mediaID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.mediaRepo.SaveReceipt(mediaID, linkID, req.HasThumb, req.HasFile)
}

// SyntheticRequest picks a random unfilled media owned by the installation
// and issues a MediaRequest for it. Dev-convenience path used on channel
// connect.
func (s *MediaService) SyntheticRequest(installationID uuid.UUID) (*model.MediaRequest, error) {
	m, err := s.mediaRepo.RandomUnfilled(installationID)
	if err != nil {
		return nil, err
	}
	req := &model.MediaRequest{
		ID:             uuid.New(),
		MediaID:        m.ID,
		InstallationID: installationID,
	}
	if err := s.requestRepo.Create(req); err != nil {
		return nil, err
	}
	return req, nil
}

// AbandonRequest drops requests the device cannot fulfil (unknown media
// or ownership mismatch). Logic errors are not retried.
func (s *MediaService) AbandonRequest(mediaID, installationID uuid.UUID) error {
	return s.requestRepo.DeleteFulfilled(mediaID, installationID)
}

// OldestRequest returns the oldest outstanding request for the device,
// or ErrNotFound when the queue is empty.
func (s *MediaService) OldestRequest(installationID uuid.UUID) (*model.MediaRequest, error) {
	req, err := s.requestRepo.OldestForInstallation(installationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// notifyDataAdded publishes a DataNotification on the account bus and
// sends a wake-up push to the account's other devices.
func (s *MediaService) notifyDataAdded(accountID uuid.UUID, m *model.Media) {
	n := &model.DataNotification{ID: uuid.New(), MediaID: m.ID}
	if s.publisher != nil {
		s.publisher.PublishToAccount(accountID, model.DataNotificationMessage(n))
	}
	if s.push != nil {
		tokens, err := s.instRepo.PushTokensForAccount(accountID, m.InstallationID)
		if err != nil {
			log.Printf("failed to load push tokens: %v", err)
			return
		}
		if len(tokens) > 0 {
			go func() {
				if err := s.push.SendDataNotification(context.Background(), tokens, m.ID.String()); err != nil {
					log.Printf("failed to send push notification: %v", err)
				}
			}()
		}
	}
}
