package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthSession is one issued credential pair. Access tokens are short-lived
// JWTs; the refresh token is an opaque random value persisted here.
// Every refresh mints a fresh row and soft-deletes the consumed one,
// so a refresh token is usable for rotation exactly once.
type AuthSession struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID      uuid.UUID      `json:"account_id" gorm:"type:uuid;index;not null"`
	InstallationID uuid.UUID      `json:"installation_id" gorm:"type:uuid;index;not null"`
	LinkID         uuid.UUID      `json:"link_id" gorm:"type:uuid;not null"`
	SecretUpdateID uuid.UUID      `json:"-" gorm:"type:uuid;not null"`
	RefreshToken   string         `json:"refresh_token" gorm:"size:255;not null;index"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
