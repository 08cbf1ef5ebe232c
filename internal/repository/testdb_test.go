package repository

import (
	"testing"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Installation{},
		&model.Account{},
		&model.AccountProperty{},
		&model.SecretUpdate{},
		&model.InstallationLink{},
		&model.AuthSession{},
		&model.Media{},
		&model.MediaReceipt{},
		&model.MediaRequest{},
	))
	return db
}

func seedInstallation(t *testing.T, db *gorm.DB, name string) *model.Installation {
	t.Helper()
	inst := &model.Installation{ID: uuid.New(), DisplayName: name}
	require.NoError(t, db.Create(inst).Error)
	return inst
}

func seedAccount(t *testing.T, db *gorm.DB, handle string) *model.Account {
	t.Helper()
	acc := &model.Account{ID: uuid.New(), Handle: handle, Name: handle, SecretHash: "x"}
	require.NoError(t, db.Create(acc).Error)
	return acc
}

func seedLink(t *testing.T, db *gorm.DB, inst *model.Installation, acc *model.Account) *model.InstallationLink {
	t.Helper()
	link := &model.InstallationLink{ID: uuid.New(), InstallationID: inst.ID, AccountID: acc.ID}
	require.NoError(t, db.Create(link).Error)
	return link
}
