package repository

import (
	"context"
	"fmt"

	"github.com/sifan077/lnurlp/internal/app/model"
	"gorm.io/gorm"
)

// Migrate creates or updates the pay_links and lnurlp_settings tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&model.PayLink{}, &model.Settings{}); err != nil {
		return fmt.Errorf("database: auto migrate: %w", err)
	}
	return nil
}
