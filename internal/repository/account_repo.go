package repository

import (
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountRepository handles database operations for Account,
// AccountProperty and SecretUpdate
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByHandle finds a non-deleted account by handle
func (r *AccountRepository) FindByHandle(handle string) (*model.Account, error) {
	var acc model.Account
	if err := r.db.Where("handle = ?", handle).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// FindByID finds an account by UUID
func (r *AccountRepository) FindByID(id uuid.UUID) (*model.Account, error) {
	var acc model.Account
	if err := r.db.Where("id = ?", id).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// HandleTaken reports whether a non-deleted account already uses the handle
func (r *AccountRepository) HandleTaken(handle string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Account{}).Where("handle = ?", handle).Count(&count).Error
	return count > 0, err
}

// CreateWithSecretUpdate inserts the account together with its initial
// SecretUpdate row and takes ownership of the given verified properties,
// all in one transaction.
func (r *AccountRepository) CreateWithSecretUpdate(acc *model.Account, propertyIDs []uuid.UUID) (*model.SecretUpdate, error) {
	update := &model.SecretUpdate{
		ID:         uuid.New(),
		AccountID:  acc.ID,
		SecretHash: acc.SecretHash,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(acc).Error; err != nil {
			return err
		}
		if err := tx.Create(update).Error; err != nil {
			return err
		}
		for _, pid := range propertyIDs {
			res := tx.Model(&model.AccountProperty{}).
				Where("id = ? AND state = ?", pid, model.PropertyStateVerified).
				Updates(map[string]interface{}{
					"state":      model.PropertyStateOwned,
					"primary":    true,
					"account_id": acc.ID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// AddSecretUpdate appends a new credential hash version and updates the
// account row, invalidating sessions pinned to older versions.
func (r *AccountRepository) AddSecretUpdate(accountID uuid.UUID, secretHash string) (*model.SecretUpdate, error) {
	update := &model.SecretUpdate{
		ID:         uuid.New(),
		AccountID:  accountID,
		SecretHash: secretHash,
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Account{}).Where("id = ?", accountID).
			Update("secret_hash", secretHash).Error; err != nil {
			return err
		}
		return tx.Create(update).Error
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// LatestSecretUpdate returns the most recent SecretUpdate for the account
func (r *AccountRepository) LatestSecretUpdate(accountID uuid.UUID) (*model.SecretUpdate, error) {
	var update model.SecretUpdate
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		First(&update).Error
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// ========== Properties ==========

// CreateProperty inserts an unverified property claim
func (r *AccountRepository) CreateProperty(prop *model.AccountProperty) error {
	return r.db.Create(prop).Error
}

// FindClaimedProperty returns the newest unowned claim for the content
func (r *AccountRepository) FindClaimedProperty(content string) (*model.AccountProperty, error) {
	var prop model.AccountProperty
	err := r.db.Where("content = ? AND state != ?", content, model.PropertyStateOwned).
		Order("created_at DESC").
		First(&prop).Error
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

// FindPropertyByID finds a property by UUID
func (r *AccountRepository) FindPropertyByID(id uuid.UUID) (*model.AccountProperty, error) {
	var prop model.AccountProperty
	if err := r.db.Where("id = ?", id).First(&prop).Error; err != nil {
		return nil, err
	}
	return &prop, nil
}

// MarkPropertyVerified transitions unverified -> verified
func (r *AccountRepository) MarkPropertyVerified(id uuid.UUID) error {
	return r.db.Model(&model.AccountProperty{}).
		Where("id = ?", id).
		Update("state", model.PropertyStateVerified).Error
}

// PrimaryPropertyExists reports whether an owned primary property with
// this normalized content already exists system-wide.
func (r *AccountRepository) PrimaryPropertyExists(content string) (bool, error) {
	var count int64
	err := r.db.Model(&model.AccountProperty{}).
		Where(`content = ? AND state = ? AND "primary" = ?`, content, model.PropertyStateOwned, true).
		Count(&count).Error
	return count > 0, err
}

// FindAccountByPrimaryProperty resolves an account by the normalized
// content of one of its owned primary properties.
func (r *AccountRepository) FindAccountByPrimaryProperty(content string) (*model.Account, error) {
	var prop model.AccountProperty
	err := r.db.Where(`content = ? AND state = ? AND "primary" = ?`, content, model.PropertyStateOwned, true).
		First(&prop).Error
	if err != nil {
		return nil, err
	}
	return r.FindByID(*prop.AccountID)
}

// RecentPropertyClaims counts claims for the content since the given time,
// used for rate limiting code sends.
func (r *AccountRepository) RecentPropertyClaims(content string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.AccountProperty{}).
		Where("content = ? AND created_at > ?", content, since).
		Count(&count).Error
	return count, err
}
