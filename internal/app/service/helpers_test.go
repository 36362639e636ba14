package service

import (
	"testing"

	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/infra/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PayLink{}, &model.Settings{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }
