package model

import "time"

// InvoiceEvent is published for every invoice created through a pay link.
type InvoiceEvent struct {
	ID          string    `json:"id"`
	LinkID      string    `json:"link_id"`
	Wallet      string    `json:"wallet"`
	PaymentHash string    `json:"payment_hash"`
	AmountMsat  int64     `json:"amount_msat"`
	Comment     string    `json:"comment,omitempty"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	InvoiceStreamName     = "LNURLP"
	InvoiceStreamSubject  = "lnurlp.invoices"
	InvoiceStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
