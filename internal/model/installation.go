package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Installation represents a single device instance of the app.
// The id is generated on the device and upserted on every start,
// so registration is idempotent and rows are never hard-deleted.
type Installation struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	DisplayName   string    `json:"name" gorm:"size:100;not null"`
	Description   string    `json:"desc" gorm:"size:500"`
	Platform      string    `json:"os" gorm:"size:50"`
	ClientVersion string    `json:"client" gorm:"size:50"`
	PushToken     string    `json:"-" gorm:"size:500"` // FCM token, empty if the device never registered one
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InstallationLink associates an Installation with an Account.
// At most one active (DeletedAt == null) link may exist per
// (installation, account) pair; re-login soft-deletes prior links.
type InstallationLink struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string         `json:"name,omitempty" gorm:"size:100"`
	InstallationID uuid.UUID      `json:"installation_id" gorm:"type:uuid;index;not null"`
	AccountID      uuid.UUID      `json:"account_id" gorm:"type:uuid;index;not null"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	Installation Installation `json:"installation" gorm:"foreignKey:InstallationID"`
}
