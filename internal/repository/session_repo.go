package repository

import (
	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository handles database operations for AuthSession
// and InstallationLink
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindLink finds an active link by UUID
func (r *SessionRepository) FindLink(id uuid.UUID) (*model.InstallationLink, error) {
	var link model.InstallationLink
	if err := r.db.Where("id = ?", id).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// ActiveLinksForAccount returns the account's active links with their
// installations preloaded; this is the Devices snapshot payload.
func (r *SessionRepository) ActiveLinksForAccount(accountID uuid.UUID) ([]model.InstallationLink, error) {
	var links []model.InstallationLink
	err := r.db.Preload("Installation").
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&links).Error
	return links, err
}

// RenameLink sets the optional display name of a link
func (r *SessionRepository) RenameLink(id uuid.UUID, name string) error {
	return r.db.Model(&model.InstallationLink{}).Where("id = ?", id).Update("name", name).Error
}

// CreateSessionWithLinkRotation soft-deletes any prior active links for
// the (installation, account) pair, creates a fresh link, and inserts the
// session bound to it. One transaction keeps the one-active-link invariant.
func (r *SessionRepository) CreateSessionWithLinkRotation(session *model.AuthSession) (*model.InstallationLink, error) {
	link := &model.InstallationLink{
		ID:             uuid.New(),
		InstallationID: session.InstallationID,
		AccountID:      session.AccountID,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("installation_id = ? AND account_id = ?",
			session.InstallationID, session.AccountID).
			Delete(&model.InstallationLink{}).Error; err != nil {
			return err
		}
		if err := tx.Create(link).Error; err != nil {
			return err
		}
		session.LinkID = link.ID
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// CreateSession inserts a session against an existing link
func (r *SessionRepository) CreateSession(session *model.AuthSession) error {
	return r.db.Create(session).Error
}

// FindByRefreshToken finds a live (non-rotated) session by refresh token
func (r *SessionRepository) FindByRefreshToken(token string) (*model.AuthSession, error) {
	var session model.AuthSession
	if err := r.db.Where("refresh_token = ?", token).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// Rotate soft-deletes the consumed session and inserts its replacement in
// one transaction, so a refresh token authorizes exactly one rotation.
func (r *SessionRepository) Rotate(consumedID uuid.UUID, replacement *model.AuthSession) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", consumedID).Delete(&model.AuthSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(replacement).Error
	})
}
