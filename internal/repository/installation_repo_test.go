package repository

import (
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUpsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstallationRepository(db)

	id := uuid.New()
	require.NoError(t, repo.Upsert(&model.Installation{ID: id, DisplayName: "phone", Platform: "android"}))

	// Called on every app start; the second call updates in place.
	require.NoError(t, repo.Upsert(&model.Installation{ID: id, DisplayName: "pixel", Platform: "android"}))

	var count int64
	require.NoError(t, db.Model(&model.Installation{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	inst, err := repo.FindByID(id)
	require.NoError(t, err)
	require.Equal(t, "pixel", inst.DisplayName)
}

func TestPushTokensForAccountExcludesSelfAndEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstallationRepository(db)

	acc := seedAccount(t, db, "alice")
	phone := seedInstallation(t, db, "phone")
	laptop := seedInstallation(t, db, "laptop")
	tablet := seedInstallation(t, db, "tablet")
	seedLink(t, db, phone, acc)
	seedLink(t, db, laptop, acc)
	seedLink(t, db, tablet, acc)

	require.NoError(t, repo.SetPushToken(phone.ID, "tok-phone"))
	require.NoError(t, repo.SetPushToken(laptop.ID, "tok-laptop"))
	// tablet never registered a token

	tokens, err := repo.PushTokensForAccount(acc.ID, phone.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"tok-laptop"}, tokens)
}
