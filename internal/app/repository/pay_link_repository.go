package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/lnurlp/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested pay link does not exist.
	ErrLinkNotFound = errors.New("pay link not found")
	// ErrDuplicateKey signals a primary key or unique index violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidDelta rejects counter decrements.
	ErrInvalidDelta = errors.New("counter delta must not be negative")
)

// PayLinkUpdate lists the mutable pay link fields. Nil leaves a field
// untouched; an empty string clears a nullable text field.
type PayLinkUpdate struct {
	Description        *string
	Min                *float64
	Max                *float64
	Currency           *string
	FiatBaseMultiplier *int
	Username           *string
	WebhookURL         *string
	WebhookHeaders     *string
	WebhookBody        *string
	SuccessText        *string
	SuccessURL         *string
	CommentChars       *int
	Zaps               *bool
}

// Empty reports whether the update carries no field at all.
func (u PayLinkUpdate) Empty() bool {
	return len(u.columns()) == 0
}

func (u PayLinkUpdate) columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Description != nil {
		cols["description"] = *u.Description
	}
	if u.Min != nil {
		cols["min"] = *u.Min
	}
	if u.Max != nil {
		cols["max"] = *u.Max
	}
	if u.FiatBaseMultiplier != nil {
		cols["fiat_base_multiplier"] = *u.FiatBaseMultiplier
	}
	if u.CommentChars != nil {
		cols["comment_chars"] = *u.CommentChars
	}
	if u.Zaps != nil {
		cols["zaps"] = *u.Zaps
	}

	nullable := map[string]*string{
		"currency":        u.Currency,
		"username":        u.Username,
		"webhook_url":     u.WebhookURL,
		"webhook_headers": u.WebhookHeaders,
		"webhook_body":    u.WebhookBody,
		"success_text":    u.SuccessText,
		"success_url":     u.SuccessURL,
	}
	for col, v := range nullable {
		if v == nil {
			continue
		}
		if *v == "" {
			cols[col] = nil
		} else {
			cols[col] = *v
		}
	}
	return cols
}

// CounterDelta holds the amounts added to the served counters.
type CounterDelta struct {
	ServedMeta int64
	ServedPR   int64
}

// PayLinkRepository defines the data access contract for pay links.
type PayLinkRepository interface {
	Create(ctx context.Context, link *model.PayLink) error
	Get(ctx context.Context, id string) (*model.PayLink, error)
	GetByUsername(ctx context.Context, username string) (*model.PayLink, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Usernames(ctx context.Context) ([]string, error)
	List(ctx context.Context, walletIDs ...string) ([]model.PayLink, error)
	Update(ctx context.Context, id string, update PayLinkUpdate) (*model.PayLink, error)
	Increment(ctx context.Context, id string, delta CounterDelta) (*model.PayLink, error)
	Delete(ctx context.Context, id string) error
}

type payLinkRepository struct {
	db *gorm.DB
}

// NewPayLinkRepository returns a GORM-backed PayLinkRepository. The DB
// should be opened with TranslateError so unique violations surface as
// ErrDuplicateKey.
func NewPayLinkRepository(db *gorm.DB) PayLinkRepository {
	return &payLinkRepository{db: db}
}

func (r *payLinkRepository) Create(ctx context.Context, link *model.PayLink) error {
	link.ServedMeta = 0
	link.ServedPR = 0
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *payLinkRepository) Get(ctx context.Context, id string) (*model.PayLink, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *payLinkRepository) GetByUsername(ctx context.Context, username string) (*model.PayLink, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *payLinkRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.PayLink{}).
		Where("username = ?", username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *payLinkRepository) Usernames(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).
		Model(&model.PayLink{}).
		Where("username IS NOT NULL").
		Pluck("username", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

func (r *payLinkRepository) List(ctx context.Context, walletIDs ...string) ([]model.PayLink, error) {
	result := []model.PayLink{}
	if len(walletIDs) == 0 {
		return result, nil
	}

	if err := r.db.WithContext(ctx).
		Where("wallet IN ?", walletIDs).
		Order("id ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func (r *payLinkRepository) Update(ctx context.Context, id string, update PayLinkUpdate) (*model.PayLink, error) {
	cols := update.columns()
	if len(cols) > 0 {
		result := r.db.WithContext(ctx).
			Model(&model.PayLink{}).
			Where("id = ?", id).
			Updates(cols)
		if result.Error != nil {
			return nil, translate(result.Error)
		}
	}
	return r.Get(ctx, id)
}

// Increment adds the deltas in a single UPDATE so concurrent callers
// never lose an increment.
func (r *payLinkRepository) Increment(ctx context.Context, id string, delta CounterDelta) (*model.PayLink, error) {
	if delta.ServedMeta < 0 || delta.ServedPR < 0 {
		return nil, ErrInvalidDelta
	}

	cols := make(map[string]interface{})
	if delta.ServedMeta > 0 {
		cols["served_meta"] = gorm.Expr("served_meta + ?", delta.ServedMeta)
	}
	if delta.ServedPR > 0 {
		cols["served_pr"] = gorm.Expr("served_pr + ?", delta.ServedPR)
	}

	if len(cols) > 0 {
		result := r.db.WithContext(ctx).
			Model(&model.PayLink{}).
			Where("id = ?", id).
			UpdateColumns(cols)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrLinkNotFound
		}
	}
	return r.Get(ctx, id)
}

func (r *payLinkRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PayLink{}).Error
}

func (r *payLinkRepository) first(ctx context.Context, query string, arg string) (*model.PayLink, error) {
	var link model.PayLink
	if err := r.db.WithContext(ctx).Where(query, arg).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}
