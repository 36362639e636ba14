package lnbits

import (
	"context"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/config"
	"github.com/sifan077/lnurlp/internal/app/service"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	register(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestClient_CreateInvoice(t *testing.T) {
	var got createPaymentRequest
	var gotKey string
	url := newBackend(t, func(app *fiber.App) {
		app.Post("/api/v1/payments", func(c *fiber.Ctx) error {
			gotKey = c.Get("X-Api-Key")
			if err := c.BodyParser(&got); err != nil {
				return err
			}
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"payment_hash":    "abcd",
				"payment_request": "lnbc10n1test",
			})
		})
	})

	client := NewClient(config.LNbitsConfig{
		URL:        url,
		InvoiceKey: "fallback",
		WalletKeys: map[string]string{"wallet-1": "key-1"},
		Timeout:    2 * time.Second,
	})

	invoice, err := client.CreateInvoice(context.Background(), service.InvoiceRequest{
		WalletID:            "wallet-1",
		AmountSat:           21,
		Memo:                "coffee",
		UnhashedDescription: []byte(`[["text/plain","coffee"]]`),
		Extra:               map[string]interface{}{"tag": "lnurlp", "link": "abc123"},
	})
	require.NoError(t, err)
	require.Equal(t, "abcd", invoice.PaymentHash)
	require.Equal(t, "lnbc10n1test", invoice.PaymentRequest)

	require.Equal(t, "key-1", gotKey)
	require.False(t, got.Out)
	require.EqualValues(t, 21, got.Amount)
	require.Equal(t, "coffee", got.Memo)
	require.Equal(t, hex.EncodeToString([]byte(`[["text/plain","coffee"]]`)), got.UnhashedDescription)
	require.Equal(t, "abc123", got.Extra["link"])
}

func TestClient_CreateInvoiceErrors(t *testing.T) {
	url := newBackend(t, func(app *fiber.App) {
		app.Post("/api/v1/payments", func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "wallet not found"})
		})
	})

	client := NewClient(config.LNbitsConfig{URL: url, InvoiceKey: "k"})
	_, err := client.CreateInvoice(context.Background(), service.InvoiceRequest{WalletID: "w", AmountSat: 1})
	require.ErrorIs(t, err, ErrUnexpectedResponse)

	noKey := NewClient(config.LNbitsConfig{URL: url})
	_, err = noKey.CreateInvoice(context.Background(), service.InvoiceRequest{WalletID: "w", AmountSat: 1})
	require.ErrorIs(t, err, ErrNoInvoiceKey)
}

func TestClient_SatoshisPerUnit(t *testing.T) {
	url := newBackend(t, func(app *fiber.App) {
		app.Get("/api/v1/rate/:currency", func(c *fiber.Ctx) error {
			if c.Params("currency") != "USD" {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "unknown currency"})
			}
			return c.JSON(fiber.Map{"rate": 1612.5, "price": 62015.5})
		})
	})

	client := NewClient(config.LNbitsConfig{URL: url})

	rate, err := client.SatoshisPerUnit(context.Background(), "usd")
	require.NoError(t, err)
	require.Equal(t, 1612.5, rate)

	_, err = client.SatoshisPerUnit(context.Background(), "XYZ")
	require.ErrorIs(t, err, ErrUnexpectedResponse)
}
