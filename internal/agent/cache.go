package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SyncState is the local lifecycle of one media object. States are
// mutually exclusive: Pending -> Generated -> Synced | GenFailed.
type SyncState string

const (
	SyncStatePending   SyncState = "pending"
	SyncStateGenerated SyncState = "generated"
	SyncStateSynced    SyncState = "synced"
	SyncStateGenFailed SyncState = "gen_failed"
)

// LocalMedia mirrors one discovered file plus its sync progress.
type LocalMedia struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Path         string    `gorm:"uniqueIndex;not null"`
	Dir          string    `gorm:"not null"`
	Size         int64     `gorm:"not null"`
	ModifiedTime time.Time `gorm:"not null"`
	CreatedTime  *time.Time
	ThumbPath    string
	State        SyncState `gorm:"index;default:'pending'"`
	Retries      int       `gorm:"default:0"`
	UpdatedAt    time.Time
}

// LocalAccount is the authenticated identity, at most one row.
type LocalAccount struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Handle string
	Name   string
}

// LocalLink is this device's active link to the account.
type LocalLink struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid"`
	Name      string
}

// RemoteThumb records where a fetched peer thumbnail was stored, keyed
// by the server-side media id so a re-fetch overwrites in place.
type RemoteThumb struct {
	MediaID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Path      string    `gorm:"not null"`
	FetchedAt time.Time
}

// TokenRecord holds the current access/refresh token pair, one row.
type TokenRecord struct {
	ID           int `gorm:"primaryKey"`
	AccessToken  string
	RefreshToken string
	UpdatedAt    time.Time
}

// Cache is the device-local transactional store shared by all workers.
// Workers rely on the store's own transaction boundaries and are written
// to be idempotent, so no cross-worker locking exists beyond that.
type Cache struct {
	db *gorm.DB
}

// OpenCache opens (or creates) the local SQLite cache at path.
func OpenCache(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}
	if err := db.AutoMigrate(&LocalMedia{}, &RemoteThumb{}, &LocalAccount{}, &LocalLink{}, &TokenRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// ==================== Media ====================

// UpsertDiscovered records a scanned file, creating a pending row on
// first sight. Re-discovery of a known path is a no-op, so the discovery
// worker can safely re-run at any time.
func (c *Cache) UpsertDiscovered(f ScannedFile) error {
	var existing LocalMedia
	err := c.db.Where("path = ?", f.Path).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return c.db.Create(&LocalMedia{
		ID:           uuid.New(),
		Path:         f.Path,
		Dir:          f.Dir,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
		CreatedTime:  f.CreatedTime,
		State:        SyncStatePending,
	}).Error
}

// NextInState returns the oldest media in the given state, or
// gorm.ErrRecordNotFound when there is none.
func (c *Cache) NextInState(state SyncState) (*LocalMedia, error) {
	var m LocalMedia
	if err := c.db.Where("state = ?", state).Order("updated_at ASC").First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkGenerated transitions a media to generated with its thumb path.
func (c *Cache) MarkGenerated(id uuid.UUID, thumbPath string) error {
	return c.db.Model(&LocalMedia{}).Where("id = ?", id).Updates(map[string]interface{}{
		"state":      SyncStateGenerated,
		"thumb_path": thumbPath,
	}).Error
}

// MarkGenFailed parks a media whose thumbnail could not be produced.
func (c *Cache) MarkGenFailed(id uuid.UUID) error {
	return c.db.Model(&LocalMedia{}).Where("id = ?", id).
		Update("state", SyncStateGenFailed).Error
}

// MarkSynced transitions a media to synced and resets its retry counter.
func (c *Cache) MarkSynced(id uuid.UUID) error {
	return c.db.Model(&LocalMedia{}).Where("id = ?", id).Updates(map[string]interface{}{
		"state":   SyncStateSynced,
		"retries": 0,
	}).Error
}

// BumpRetries increments the retry counter after a transient upload
// failure, leaving the state unchanged so the worker picks it up again.
func (c *Cache) BumpRetries(id uuid.UUID) error {
	return c.db.Model(&LocalMedia{}).Where("id = ?", id).
		Update("retries", gorm.Expr("retries + 1")).Error
}

// FindMedia loads one local media row by id.
func (c *Cache) FindMedia(id uuid.UUID) (*LocalMedia, error) {
	var m LocalMedia
	if err := c.db.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveRemoteThumb records (or refreshes) the on-disk location of a
// fetched peer thumbnail.
func (c *Cache) SaveRemoteThumb(mediaID uuid.UUID, path string) error {
	return c.db.Save(&RemoteThumb{MediaID: mediaID, Path: path, FetchedAt: time.Now()}).Error
}

// RemoteThumbPath returns where a peer thumbnail was stored, or
// gorm.ErrRecordNotFound when it was never fetched.
func (c *Cache) RemoteThumbPath(mediaID uuid.UUID) (string, error) {
	var t RemoteThumb
	if err := c.db.First(&t, "media_id = ?", mediaID).Error; err != nil {
		return "", err
	}
	return t.Path, nil
}

// ==================== Identity ====================

// SaveIdentity stores the logged-in account, link and token pair.
func (c *Cache) SaveIdentity(account LocalAccount, link LocalLink, access, refresh string) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		if err := tx.Save(&link).Error; err != nil {
			return err
		}
		return tx.Save(&TokenRecord{ID: 1, AccessToken: access, RefreshToken: refresh}).Error
	})
}

// Tokens returns the stored token pair, or gorm.ErrRecordNotFound.
func (c *Cache) Tokens() (*TokenRecord, error) {
	var t TokenRecord
	if err := c.db.First(&t, "id = ?", 1).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTokens replaces the stored token pair after a refresh.
func (c *Cache) SaveTokens(access, refresh string) error {
	return c.db.Save(&TokenRecord{ID: 1, AccessToken: access, RefreshToken: refresh}).Error
}

// Account returns the stored identity, or gorm.ErrRecordNotFound.
func (c *Cache) Account() (*LocalAccount, error) {
	var a LocalAccount
	if err := c.db.First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// PurgeAuth wipes auth, account and link state on forced logout.
// Media rows survive so a re-login does not re-upload everything.
func (c *Cache) PurgeAuth() error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&TokenRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&LocalAccount{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&LocalLink{}).Error
	})
}
