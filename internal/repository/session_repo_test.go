package repository

import (
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/clipsyncapp/api-clipsync/pkg/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSession(acc *model.Account, inst *model.Installation) *model.AuthSession {
	return &model.AuthSession{
		ID:             uuid.New(),
		AccountID:      acc.ID,
		InstallationID: inst.ID,
		SecretUpdateID: uuid.New(),
		RefreshToken:   auth.NewRefreshToken(),
	}
}

func TestLinkRotationKeepsOneActiveLink(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	acc := seedAccount(t, db, "alice")
	inst := seedInstallation(t, db, "phone")

	first, err := repo.CreateSessionWithLinkRotation(newSession(acc, inst))
	require.NoError(t, err)

	// Re-login rotates: the prior link is soft-deleted, a fresh one created.
	second, err := repo.CreateSessionWithLinkRotation(newSession(acc, inst))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	links, err := repo.ActiveLinksForAccount(acc.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, second.ID, links[0].ID)

	// The rotated link survives as a soft-deleted row.
	var count int64
	require.NoError(t, db.Unscoped().Model(&model.InstallationLink{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestLinkRotationLeavesOtherDevicesAlone(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	acc := seedAccount(t, db, "alice")
	phone := seedInstallation(t, db, "phone")
	laptop := seedInstallation(t, db, "laptop")

	_, err := repo.CreateSessionWithLinkRotation(newSession(acc, phone))
	require.NoError(t, err)
	_, err = repo.CreateSessionWithLinkRotation(newSession(acc, laptop))
	require.NoError(t, err)

	links, err := repo.ActiveLinksForAccount(acc.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
}

func TestRotateIsSingleUse(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	acc := seedAccount(t, db, "alice")
	inst := seedInstallation(t, db, "phone")

	session := newSession(acc, inst)
	link, err := repo.CreateSessionWithLinkRotation(session)
	require.NoError(t, err)

	replacement := newSession(acc, inst)
	replacement.LinkID = link.ID
	require.NoError(t, repo.Rotate(session.ID, replacement))

	// The consumed token no longer resolves.
	_, err = repo.FindByRefreshToken(session.RefreshToken)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Replaying the rotation fails instead of minting another session.
	again := newSession(acc, inst)
	again.LinkID = link.ID
	require.ErrorIs(t, repo.Rotate(session.ID, again), gorm.ErrRecordNotFound)

	// The replacement's token works.
	found, err := repo.FindByRefreshToken(replacement.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, replacement.ID, found.ID)
}

func TestRenameLink(t *testing.T) {
	db := newTestDB(t)
	repo := NewSessionRepository(db)

	acc := seedAccount(t, db, "alice")
	inst := seedInstallation(t, db, "phone")
	link, err := repo.CreateSessionWithLinkRotation(newSession(acc, inst))
	require.NoError(t, err)

	require.NoError(t, repo.RenameLink(link.ID, "kitchen tablet"))

	found, err := repo.FindLink(link.ID)
	require.NoError(t, err)
	require.Equal(t, "kitchen tablet", found.Name)
}
