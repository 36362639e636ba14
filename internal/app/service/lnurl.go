package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sifan077/lnurlp/internal/app/model"
)

const (
	// CallbackPath is where step two of the exchange is served.
	CallbackPath = "/api/v1/lnurl/cb/"

	payRequestTag = "payRequest"
	invoiceTag    = "lnurlp"
)

var (
	msatPerSat = decimal.NewFromInt(1000)
	// The fiat rate may move between the two calls.
	minTolerance = decimal.NewFromInt(995)
	maxTolerance = decimal.NewFromInt(1010)
)

// PayResponse is the step one payload.
type PayResponse struct {
	Tag            string `json:"tag"`
	Callback       string `json:"callback"`
	Metadata       string `json:"metadata"`
	MinSendable    int64  `json:"minSendable"`
	MaxSendable    int64  `json:"maxSendable"`
	CommentAllowed int    `json:"commentAllowed,omitempty"`
}

// SuccessAction is shown by the wallet once the invoice is paid.
type SuccessAction struct {
	Tag         string `json:"tag"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// CallbackResponse is the step two payload.
type CallbackResponse struct {
	PR            string         `json:"pr"`
	Routes        []interface{}  `json:"routes"`
	SuccessAction *SuccessAction `json:"successAction,omitempty"`
}

// ErrorResponse is the LNURL error payload.
type ErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Metadata renders the LNURL metadata string for link. The identifier
// entry is only present when both a username and a domain are known.
// The output is hashed into the invoice, so it must stay byte-stable.
func Metadata(link *model.PayLink, domain string) string {
	entries := [][2]string{{"text/plain", link.Description}}
	if username := link.UsernameValue(); username != "" && domain != "" {
		entries = append(entries, [2]string{"text/identifier", username + "@" + domain})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// [][2]string always encodes.
	_ = enc.Encode(entries)
	return strings.TrimSuffix(buf.String(), "\n")
}

// MetadataHash returns the hex sha256 a wallet compares against the
// invoice description hash.
func MetadataHash(metadata string) string {
	sum := sha256.Sum256([]byte(metadata))
	return hex.EncodeToString(sum[:])
}

// SuccessActionFor picks the post-payment action: url wins over message.
func SuccessActionFor(link *model.PayLink) *SuccessAction {
	text := ""
	if link.SuccessText != nil {
		text = *link.SuccessText
	}

	if link.SuccessURL != nil && *link.SuccessURL != "" {
		if text == "" {
			text = "~"
		}
		return &SuccessAction{Tag: "url", Description: text, URL: *link.SuccessURL}
	}
	if text != "" {
		return &SuccessAction{Tag: "message", Message: text}
	}
	return nil
}

// advertisedBounds returns step one's min/max sendable in msat:
// round(bound × rate) × 1000, rounding half to even.
func advertisedBounds(link *model.PayLink, rate float64) (int64, int64) {
	lo, hi := link.Bounds()
	r := decimal.NewFromFloat(rate)
	minSat := decimal.NewFromFloat(lo).Mul(r).RoundBank(0)
	maxSat := decimal.NewFromFloat(hi).Mul(r).RoundBank(0)
	return minSat.Mul(msatPerSat).IntPart(), maxSat.Mul(msatPerSat).IntPart()
}

// acceptedBounds returns step two's accepted range in msat. Fiat links
// widen the range by -0.5% / +1% of the current rate.
func acceptedBounds(link *model.PayLink, rate float64) (int64, int64) {
	lo, hi := link.Bounds()
	dMin, dMax := decimal.NewFromFloat(lo), decimal.NewFromFloat(hi)

	if link.CurrencyCode() == "" {
		return dMin.Mul(msatPerSat).Floor().IntPart(), dMax.Mul(msatPerSat).Ceil().IntPart()
	}

	r := decimal.NewFromFloat(rate)
	return r.Mul(minTolerance).Mul(dMin).Floor().IntPart(),
		r.Mul(maxTolerance).Mul(dMax).Ceil().IntPart()
}
