package lnbits

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/config"
	"github.com/sifan077/lnurlp/internal/app/service"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrNoInvoiceKey signals that no API key is configured for a wallet.
	ErrNoInvoiceKey = errors.New("lnbits: no invoice key for wallet")
	// ErrUnexpectedResponse signals a non-2xx or malformed backend reply.
	ErrUnexpectedResponse = errors.New("lnbits: unexpected response")
)

// Client talks to an LNbits-compatible wallet API. It implements both
// service.InvoiceCreator and service.RateOracle.
type Client struct {
	baseURL    string
	invoiceKey string
	walletKeys map[string]string
	timeout    time.Duration
}

// NewClient builds a client from app config.
func NewClient(cfg config.LNbitsConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		invoiceKey: cfg.InvoiceKey,
		walletKeys: cfg.WalletKeys,
		timeout:    timeout,
	}
}

type createPaymentRequest struct {
	Out                 bool                   `json:"out"`
	Amount              int64                  `json:"amount"`
	Memo                string                 `json:"memo"`
	UnhashedDescription string                 `json:"unhashed_description,omitempty"`
	Extra               map[string]interface{} `json:"extra,omitempty"`
}

type createPaymentResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	Bolt11         string `json:"bolt11"`
	Detail         string `json:"detail"`
}

type rateResponse struct {
	Rate   float64 `json:"rate"`
	Price  float64 `json:"price"`
	Detail string  `json:"detail"`
}

// CreateInvoice issues an incoming payment request for the wallet.
func (c *Client) CreateInvoice(ctx context.Context, req service.InvoiceRequest) (*service.Invoice, error) {
	key := c.keyFor(req.WalletID)
	if key == "" {
		return nil, fmt.Errorf("%w %s", ErrNoInvoiceKey, req.WalletID)
	}

	body := createPaymentRequest{
		Out:                 false,
		Amount:              req.AmountSat,
		Memo:                req.Memo,
		UnhashedDescription: hex.EncodeToString(req.UnhashedDescription),
		Extra:               req.Extra,
	}

	agent := fiber.Post(c.baseURL + "/api/v1/payments")
	agent.Set("X-Api-Key", key)
	agent.JSON(body)

	var resp createPaymentResponse
	if err := c.do(ctx, agent, &resp); err != nil {
		return nil, fmt.Errorf("lnbits: create invoice: %w", err)
	}

	pr := resp.PaymentRequest
	if pr == "" {
		pr = resp.Bolt11
	}
	if pr == "" || resp.PaymentHash == "" {
		return nil, fmt.Errorf("%w: missing payment request", ErrUnexpectedResponse)
	}
	return &service.Invoice{PaymentHash: resp.PaymentHash, PaymentRequest: pr}, nil
}

// SatoshisPerUnit returns the fiat rate reported by the backend.
func (c *Client) SatoshisPerUnit(ctx context.Context, currency string) (float64, error) {
	agent := fiber.Get(c.baseURL + "/api/v1/rate/" + url.PathEscape(strings.ToUpper(currency)))

	var resp rateResponse
	if err := c.do(ctx, agent, &resp); err != nil {
		return 0, fmt.Errorf("lnbits: fiat rate: %w", err)
	}
	if resp.Rate <= 0 {
		return 0, fmt.Errorf("%w: non-positive rate for %s", ErrUnexpectedResponse, currency)
	}
	return resp.Rate, nil
}

func (c *Client) do(ctx context.Context, agent *fiber.Agent, out interface{}) error {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrUnexpectedResponse, code, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func (c *Client) keyFor(walletID string) string {
	if key, ok := c.walletKeys[walletID]; ok && key != "" {
		return key
	}
	return c.invoiceKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
