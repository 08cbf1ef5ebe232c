package repository

import (
	"testing"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedMedia(t *testing.T, repo *MediaRepository, inst *model.Installation, kind model.MediaKind) *model.Media {
	t.Helper()
	m, err := repo.RecordDataAdded(&model.Media{
		ID:             uuid.New(),
		Path:           "/photos/a.jpg",
		Dir:            "/photos",
		ModifiedTime:   time.Now(),
		Size:           1024,
		InstallationID: inst.ID,
	}, kind)
	require.NoError(t, err)
	return m
}

func TestRecordDataAddedCreatesThenFlips(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)
	inst := seedInstallation(t, db, "phone")

	m := seedMedia(t, repo, inst, model.MediaKindThumb)
	require.True(t, m.HasThumb)
	require.False(t, m.HasFile)

	// Second call for the other kind flips the flag on the same row
	// and must not touch the immutable metadata.
	out, err := repo.RecordDataAdded(&model.Media{
		ID:             m.ID,
		Path:           "/somewhere/else.jpg",
		Dir:            "/somewhere",
		ModifiedTime:   time.Now(),
		Size:           999,
		InstallationID: inst.ID,
	}, model.MediaKindFile)
	require.NoError(t, err)
	require.True(t, out.HasThumb)
	require.True(t, out.HasFile)
	require.Equal(t, "/photos/a.jpg", out.Path)
	require.Equal(t, int64(1024), out.Size)

	var count int64
	require.NoError(t, db.Model(&model.Media{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRecordDataAddedRetryIsNoOp(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)
	inst := seedInstallation(t, db, "phone")

	m := seedMedia(t, repo, inst, model.MediaKindFile)

	// A retried upload after a dropped connection re-submits the same
	// metadata; the second call is a flag flip on the existing row.
	out, err := repo.RecordDataAdded(&model.Media{
		ID:             m.ID,
		Path:           m.Path,
		Dir:            m.Dir,
		ModifiedTime:   m.ModifiedTime,
		Size:           m.Size,
		InstallationID: inst.ID,
	}, model.MediaKindFile)
	require.NoError(t, err)
	require.True(t, out.HasFile)
	require.False(t, out.HasThumb)
}

func TestListVisibleScoping(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)

	acc := seedAccount(t, db, "alice")
	phone := seedInstallation(t, db, "phone")
	laptop := seedInstallation(t, db, "laptop")
	phoneLink := seedLink(t, db, phone, acc)
	laptopLink := seedLink(t, db, laptop, acc)

	phoneMedia := seedMedia(t, repo, phone, model.MediaKindThumb)
	seedMedia(t, repo, laptop, model.MediaKindThumb)

	// The laptop sees only the phone's media, never its own uploads.
	visible, err := repo.ListVisible(acc.ID, laptopLink.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, phoneMedia.ID, visible[0].ID)

	// Same for the phone looking the other way.
	visible, err = repo.ListVisible(acc.ID, phoneLink.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.NotEqual(t, phoneMedia.ID, visible[0].ID)
}

func TestListVisibleExcludesAcknowledged(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)

	acc := seedAccount(t, db, "alice")
	phone := seedInstallation(t, db, "phone")
	laptop := seedInstallation(t, db, "laptop")
	seedLink(t, db, phone, acc)
	laptopLink := seedLink(t, db, laptop, acc)

	m := seedMedia(t, repo, phone, model.MediaKindThumb)

	// Matching receipt hides the row.
	yes, no := true, false
	_, err := repo.SaveReceipt(m.ID, laptopLink.ID, &yes, &no)
	require.NoError(t, err)

	visible, err := repo.ListVisible(acc.ID, laptopLink.ID)
	require.NoError(t, err)
	require.Empty(t, visible)

	// The owner uploading the file makes the receipt stale again.
	_, err = repo.RecordDataAdded(&model.Media{ID: m.ID}, model.MediaKindFile)
	require.NoError(t, err)

	visible, err = repo.ListVisible(acc.ID, laptopLink.ID)
	require.NoError(t, err)
	require.Len(t, visible, 1)
}

func TestListVisibleIgnoresUnlinkedInstallations(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)

	acc := seedAccount(t, db, "alice")
	other := seedAccount(t, db, "bob")
	phone := seedInstallation(t, db, "phone")
	stranger := seedInstallation(t, db, "stranger")
	phoneLink := seedLink(t, db, phone, acc)
	seedLink(t, db, stranger, other)

	seedMedia(t, repo, stranger, model.MediaKindThumb)

	visible, err := repo.ListVisible(acc.ID, phoneLink.ID)
	require.NoError(t, err)
	require.Empty(t, visible)
}

func TestSaveReceiptMergesNilFields(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)

	acc := seedAccount(t, db, "alice")
	phone := seedInstallation(t, db, "phone")
	link := seedLink(t, db, phone, acc)
	m := seedMedia(t, repo, phone, model.MediaKindThumb)

	yes := true
	first, err := repo.SaveReceipt(m.ID, link.ID, &yes, nil)
	require.NoError(t, err)
	require.True(t, first.HasThumb)
	require.False(t, first.HasFile) // first insert defaults omitted fields to false

	// Omitting has_thumb on the update must preserve it.
	second, err := repo.SaveReceipt(m.ID, link.ID, nil, &yes)
	require.NoError(t, err)
	require.True(t, second.HasThumb)
	require.True(t, second.HasFile)
}

func TestVisibleToAccount(t *testing.T) {
	db := newTestDB(t)
	repo := NewMediaRepository(db)

	acc := seedAccount(t, db, "alice")
	other := seedAccount(t, db, "bob")
	phone := seedInstallation(t, db, "phone")
	seedLink(t, db, phone, acc)
	m := seedMedia(t, repo, phone, model.MediaKindFile)

	ok, err := repo.VisibleToAccount(m.ID, acc.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.VisibleToAccount(m.ID, other.ID)
	require.NoError(t, err)
	require.False(t, ok)
}
