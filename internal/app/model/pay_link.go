package model

import "time"

// DefaultFiatBaseMultiplier stores fiat bounds in cents.
const DefaultFiatBaseMultiplier = 100

// PayLink describes a persisted LNURL-pay link.
type PayLink struct {
	ID                 string    `json:"id" gorm:"primaryKey;size:16"`
	Wallet             string    `json:"wallet" gorm:"size:64;not null;index"`
	Description        string    `json:"description" gorm:"type:text;not null"`
	Min                float64   `json:"min" gorm:"not null"`
	Max                float64   `json:"max" gorm:"not null"`
	Currency           *string   `json:"currency" gorm:"size:8"`
	FiatBaseMultiplier int       `json:"fiat_base_multiplier" gorm:"not null;default:100"`
	Username           *string   `json:"username" gorm:"size:64;uniqueIndex"`
	WebhookURL         *string   `json:"webhook_url" gorm:"type:text"`
	WebhookHeaders     *string   `json:"webhook_headers" gorm:"type:text"`
	WebhookBody        *string   `json:"webhook_body" gorm:"type:text"`
	SuccessText        *string   `json:"success_text" gorm:"type:text"`
	SuccessURL         *string   `json:"success_url" gorm:"type:text"`
	CommentChars       int       `json:"comment_chars" gorm:"not null;default:0"`
	Zaps               bool      `json:"zaps" gorm:"not null;default:false"`
	ServedMeta         int64     `json:"served_meta" gorm:"not null;default:0"`
	ServedPR           int64     `json:"served_pr" gorm:"column:served_pr;not null;default:0"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PayLink) TableName() string { return "pay_links" }

// CurrencyCode returns the fiat currency or "" for satoshi links.
func (l *PayLink) CurrencyCode() string {
	if l.Currency == nil {
		return ""
	}
	return *l.Currency
}

// UsernameValue returns the username or "".
func (l *PayLink) UsernameValue() string {
	if l.Username == nil {
		return ""
	}
	return *l.Username
}

// Bounds returns min and max in whole currency units (or satoshis).
// Fiat bounds are stored multiplied by FiatBaseMultiplier.
func (l *PayLink) Bounds() (float64, float64) {
	if l.CurrencyCode() != "" && l.FiatBaseMultiplier > 0 {
		m := float64(l.FiatBaseMultiplier)
		return l.Min / m, l.Max / m
	}
	return l.Min, l.Max
}
