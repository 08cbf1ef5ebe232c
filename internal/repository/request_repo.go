package repository

import (
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRepository handles database operations for MediaRequest
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new media request
func (r *RequestRepository) Create(req *model.MediaRequest) error {
	return r.db.Create(req).Error
}

// OldestForInstallation returns the oldest outstanding request addressed
// to the installation, or gorm.ErrRecordNotFound.
func (r *RequestRepository) OldestForInstallation(installationID uuid.UUID) (*model.MediaRequest, error) {
	var req model.MediaRequest
	err := r.db.Where("installation_id = ?", installationID).
		Order("created_at ASC").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// DeleteFulfilled removes every request for the media addressed to the
// installation, called after a successful upload or on abandonment.
func (r *RequestRepository) DeleteFulfilled(mediaID, installationID uuid.UUID) error {
	return r.db.Where("media_id = ? AND installation_id = ?", mediaID, installationID).
		Delete(&model.MediaRequest{}).Error
}
