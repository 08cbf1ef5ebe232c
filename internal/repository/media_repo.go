package repository

import (
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MediaRepository handles database operations for Media and MediaReceipt
type MediaRepository struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// FindByID finds a media row by UUID
func (r *MediaRepository) FindByID(id uuid.UUID) (*model.Media, error) {
	var m model.Media
	if err := r.db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListAll returns every media row with no visibility filtering.
// Administrative/debug path only.
func (r *MediaRepository) ListAll() ([]model.Media, error) {
	var medias []model.Media
	err := r.db.Order("created_at ASC").Find(&medias).Error
	return medias, err
}

// ListVisible is the "what's new for me" query. It returns media owned by
// any installation actively linked to the account, excluding the consuming
// link's own installation, and only rows the consuming device has not
// fully acknowledged (receipt missing or flags stale).
func (r *MediaRepository) ListVisible(accountID, consumingLinkID uuid.UUID) ([]model.Media, error) {
	var medias []model.Media
	err := r.db.Model(&model.Media{}).
		Joins(`JOIN installation_links owner_link ON owner_link.installation_id = medias.installation_id
			AND owner_link.account_id = ? AND owner_link.deleted_at IS NULL`, accountID).
		Joins(`LEFT JOIN media_receipts r ON r.media_id = medias.id AND r.installation_link_id = ?`, consumingLinkID).
		Where(`medias.installation_id != (SELECT installation_id FROM installation_links WHERE id = ?)`, consumingLinkID).
		Where(`r.media_id IS NULL OR r.has_thumb != medias.has_thumb OR r.has_file != medias.has_file`).
		Order("medias.created_at ASC").
		Find(&medias).Error
	return medias, err
}

// RecordDataAdded is idempotent: if the row exists only the flag for the
// given kind flips (a retried upload after a dropped connection becomes a
// no-op flag flip); otherwise the full row is created with that flag set.
// Immutable fields are never touched on the existing row.
func (r *MediaRepository) RecordDataAdded(m *model.Media, kind model.MediaKind) (*model.Media, error) {
	flag := "has_file"
	if kind == model.MediaKindThumb {
		flag = "has_thumb"
	}

	var out *model.Media
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Media
		err := tx.Where("id = ?", m.ID).First(&existing).Error
		if err == nil {
			if err := tx.Model(&existing).Update(flag, true).Error; err != nil {
				return err
			}
			out = &existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		switch kind {
		case model.MediaKindThumb:
			m.HasThumb = true
			m.HasFile = false
		default:
			m.HasFile = true
			m.HasThumb = false
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if kind == model.MediaKindThumb {
		out.HasThumb = true
	} else {
		out.HasFile = true
	}
	return out, nil
}

// SaveReceipt upserts the consuming device's acknowledgment. Nil fields
// preserve the prior value; a first insert defaults missing fields to false.
func (r *MediaRepository) SaveReceipt(mediaID, linkID uuid.UUID, hasThumb, hasFile *bool) (*model.MediaReceipt, error) {
	receipt := &model.MediaReceipt{
		MediaID:            mediaID,
		InstallationLinkID: linkID,
		UpdatedAt:          time.Now(),
	}
	assignments := map[string]interface{}{"updated_at": receipt.UpdatedAt}
	if hasThumb != nil {
		receipt.HasThumb = *hasThumb
		assignments["has_thumb"] = *hasThumb
	}
	if hasFile != nil {
		receipt.HasFile = *hasFile
		assignments["has_file"] = *hasFile
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "media_id"}, {Name: "installation_link_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(receipt).Error
	if err != nil {
		return nil, err
	}

	var out model.MediaReceipt
	if err := r.db.Where("media_id = ? AND installation_link_id = ?", mediaID, linkID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// VisibleToAccount reports whether the media's owning installation is
// actively linked to the account. Gates raw blob fetches.
func (r *MediaRepository) VisibleToAccount(mediaID, accountID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.Media{}).
		Joins(`JOIN installation_links ON installation_links.installation_id = medias.installation_id
			AND installation_links.account_id = ? AND installation_links.deleted_at IS NULL`, accountID).
		Where("medias.id = ?", mediaID).
		Count(&count).Error
	return count > 0, err
}

// FlaggedMedia returns rows claiming at least one uploaded blob,
// used by the startup blob reconciliation pass.
func (r *MediaRepository) FlaggedMedia() ([]model.Media, error) {
	var medias []model.Media
	err := r.db.Where("has_thumb = ? OR has_file = ?", true, true).Find(&medias).Error
	return medias, err
}

// RandomUnfilled picks one media owned by the installation that is still
// missing its file blob. Dev-convenience path for the real-time channel.
func (r *MediaRepository) RandomUnfilled(installationID uuid.UUID) (*model.Media, error) {
	var m model.Media
	err := r.db.Where("installation_id = ? AND has_file = ?", installationID, false).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
