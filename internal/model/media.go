package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaKind distinguishes the two blobs tracked per media object.
type MediaKind string

const (
	MediaKindFile  MediaKind = "file"
	MediaKindThumb MediaKind = "thumb"
)

// Media is a file (image/video) object tracked for cross-device sync.
// Path/dir/size/mod/cre are immutable after creation; only the two
// completeness flags (and receipts) mutate. HasThumb/HasFile record
// whether the owning device pushed the blob to the server.
type Media struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Path           string         `json:"path" gorm:"size:1000;not null"`
	Dir            string         `json:"dir" gorm:"size:1000;not null"`
	CreatedTime    *time.Time     `json:"cre,omitempty"`
	ModifiedTime   time.Time      `json:"mod" gorm:"not null"`
	Size           int64          `json:"size" gorm:"not null"`
	HasThumb       bool           `json:"has_thumb" gorm:"default:false"`
	HasFile        bool           `json:"has_file" gorm:"default:false"`
	MediaType      string         `json:"media_type,omitempty" gorm:"size:100"`
	InstallationID uuid.UUID      `json:"installation_id" gorm:"type:uuid;index;not null"` // owning device, immutable
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Media) TableName() string { return "medias" }

// MediaReceipt records, per consuming installation link, whether that
// device has fetched the media's thumb and file. Composite key.
type MediaReceipt struct {
	MediaID            uuid.UUID `json:"media_id" gorm:"type:uuid;primaryKey"`
	InstallationLinkID uuid.UUID `json:"installation_link_id" gorm:"type:uuid;primaryKey"`
	HasThumb           bool      `json:"has_thumb" gorm:"default:false"`
	HasFile            bool      `json:"has_file" gorm:"default:false"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MediaRequest is an ephemeral work item telling an origin installation
// to upload a media object now. Deleted once fulfilled or abandoned.
type MediaRequest struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	MediaID        uuid.UUID `json:"media_id" gorm:"type:uuid;index;not null"`
	InstallationID uuid.UUID `json:"installation_id" gorm:"type:uuid;index;not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// DataNotification tells a consuming device that server media state
// changed and the listing should be re-pulled.
type DataNotification struct {
	ID      uuid.UUID `json:"id"`
	MediaID uuid.UUID `json:"media_id"`
}
