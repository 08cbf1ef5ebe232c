package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is a user account identified by a unique handle.
type Account struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Handle     string         `json:"handle" gorm:"size:100;not null;index"`
	Name       string         `json:"name" gorm:"size:100;not null"`
	SecretHash string         `json:"-" gorm:"size:255;not null"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// PropertyState tracks the verification lifecycle of an AccountProperty.
type PropertyState string

const (
	PropertyStateUnverified PropertyState = "unverified"
	PropertyStateVerified   PropertyState = "verified"
	PropertyStateOwned      PropertyState = "owned"
)

// PropertyType is the kind of claimable identifier.
type PropertyType string

const (
	PropertyTypeEmail PropertyType = "email"
	PropertyTypePhone PropertyType = "phone"
)

// AccountProperty is a claimable identifier (email/phone) with a
// verification code. Lifecycle: unverified -> verified -> owned.
// At most one primary property per normalized content system-wide.
type AccountProperty struct {
	ID        uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	Content   string        `json:"content" gorm:"size:255;not null;index"` // normalized
	Type      PropertyType  `json:"type" gorm:"type:varchar(20);default:'email'"`
	State     PropertyState `json:"state" gorm:"type:varchar(20);default:'unverified'"`
	Code      string        `json:"-" gorm:"size:6"` // 6-digit verification code
	Primary   bool          `json:"primary" gorm:"default:false"`
	AccountID *uuid.UUID    `json:"account_id,omitempty" gorm:"type:uuid;index"` // set once owned
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// IsVerified reports whether the property passed its code challenge.
func (p *AccountProperty) IsVerified() bool {
	return p.State == PropertyStateVerified || p.State == PropertyStateOwned
}

// SecretUpdate is an append-only record of an account's credential hash.
// Sessions pin the SecretUpdate valid at issuance; changing the secret
// invalidates sessions created under a stale hash.
type SecretUpdate struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID  uuid.UUID `json:"account_id" gorm:"type:uuid;index;not null"`
	SecretHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt  time.Time `json:"created_at"`
}
