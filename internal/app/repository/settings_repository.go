package repository

import (
	"context"
	"errors"

	"github.com/sifan077/lnurlp/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSettingsNotFound signals that the settings row was never created.
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsRepository persists the single settings row.
type SettingsRepository interface {
	Get(ctx context.Context) (*model.Settings, error)
	// CreateIfAbsent inserts the row unless one already exists and
	// reports whether this call inserted it.
	CreateIfAbsent(ctx context.Context, settings *model.Settings) (bool, error)
	Save(ctx context.Context, settings *model.Settings) error
	Delete(ctx context.Context) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository returns a GORM-backed SettingsRepository.
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*model.Settings, error) {
	var s model.Settings
	if err := r.db.WithContext(ctx).Where("id = ?", model.SettingsRowID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepository) CreateIfAbsent(ctx context.Context, settings *model.Settings) (bool, error) {
	settings.ID = model.SettingsRowID
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(settings)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *model.Settings) error {
	settings.ID = model.SettingsRowID
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"nostr_private_key"}),
		}).
		Create(settings).Error
}

func (r *settingsRepository) Delete(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&model.Settings{}).Error
}
