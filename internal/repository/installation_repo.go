package repository

import (
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstallationRepository handles database operations for Installation
type InstallationRepository struct {
	db *gorm.DB
}

func NewInstallationRepository(db *gorm.DB) *InstallationRepository {
	return &InstallationRepository{db: db}
}

// Upsert registers an installation by id. Safe to call on every app start:
// the row is created once and mutable metadata is last-write-wins.
func (r *InstallationRepository) Upsert(inst *model.Installation) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "description", "platform", "client_version", "updated_at",
		}),
	}).Create(inst).Error
}

// FindByID finds an installation by UUID
func (r *InstallationRepository) FindByID(id uuid.UUID) (*model.Installation, error) {
	var inst model.Installation
	if err := r.db.Where("id = ?", id).First(&inst).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// SetPushToken stores the device's FCM token
func (r *InstallationRepository) SetPushToken(id uuid.UUID, token string) error {
	return r.db.Model(&model.Installation{}).Where("id = ?", id).Update("push_token", token).Error
}

// PushTokensForAccount returns the non-empty push tokens of every
// installation actively linked to the account, excluding one installation.
func (r *InstallationRepository) PushTokensForAccount(accountID, excludeInstallationID uuid.UUID) ([]string, error) {
	var tokens []string
	err := r.db.Model(&model.Installation{}).
		Joins("JOIN installation_links ON installation_links.installation_id = installations.id").
		Where("installation_links.account_id = ? AND installation_links.deleted_at IS NULL", accountID).
		Where("installations.id != ? AND installations.push_token != ''", excludeInstallationID).
		Pluck("installations.push_token", &tokens).Error
	return tokens, err
}
