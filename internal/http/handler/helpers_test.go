package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/sifan077/lnurlp/internal/app/service"
	"github.com/sifan077/lnurlp/internal/infra/sqlite"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testPublicURL = "https://pay.example.com"
	testWallet    = "wallet-1"
	testAdminKey  = "operator-secret"
	testNostrKey  = "0000000000000000000000000000000000000000000000000000000000000003"
)

type fakeRates struct{}

func (fakeRates) SatoshisPerUnit(ctx context.Context, currency string) (float64, error) {
	return 50000, nil
}

type fakeInvoices struct {
	mu       sync.Mutex
	requests []service.InvoiceRequest
	err      error
}

func (f *fakeInvoices) CreateInvoice(ctx context.Context, req service.InvoiceRequest) (*service.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &service.Invoice{PaymentHash: "ph", PaymentRequest: "lnbc1fake"}, nil
}

type testEnv struct {
	app      *fiber.App
	links    service.PayLinkService
	invoices *fakeInvoices
	fs       afero.Fs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PayLink{}, &model.Settings{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		app:      fiber.New(),
		links:    service.NewPayLinkService(repository.NewPayLinkRepository(db), zap.NewNop()),
		invoices: &fakeInvoices{},
		fs:       afero.NewMemMapFs(),
	}

	settings := service.NewSettingsService(service.SettingsDeps{
		Repo:       repository.NewSettingsRepository(db),
		Fs:         env.fs,
		RelaysPath: "/data/relays.txt",
		NewKey:     func() (string, error) { return testNostrKey, nil },
	})
	lnurl := service.NewLNURLService(service.LNURLDeps{
		Links:    env.links,
		Rates:    fakeRates{},
		Invoices: env.invoices,
	})

	NewAPIHandler(APIDeps{Links: env.links, Settings: settings, PublicURL: testPublicURL, AdminKey: testAdminKey}).Register(env.app)
	NewPageHandler(PageDeps{Links: env.links, PublicURL: testPublicURL}).Register(env.app)
	NewLNURLHandler(LNURLDeps{LNURL: lnurl, PublicURL: testPublicURL}).Register(env.app)
	return env
}

func (e *testEnv) createLink(t *testing.T, input service.CreatePayLinkInput) *model.PayLink {
	t.Helper()
	link, err := e.links.Create(context.Background(), input, testWallet)
	require.NoError(t, err)
	return link
}

// do sends a request through the app; body may be nil. The wallet
// header is set when wallet is not empty.
func (e *testEnv) do(t *testing.T, method, target, wallet string, body interface{}) *http.Response {
	t.Helper()
	headers := map[string]string{}
	if wallet != "" {
		headers[WalletHeader] = wallet
	}
	return e.send(t, method, target, headers, body)
}

// admin sends a request carrying the admin key, or none when key is empty.
func (e *testEnv) admin(t *testing.T, method, target, key string, body interface{}) *http.Response {
	t.Helper()
	headers := map[string]string{}
	if key != "" {
		headers[AdminKeyHeader] = key
	}
	return e.send(t, method, target, headers, body)
}

func (e *testEnv) send(t *testing.T, method, target string, headers map[string]string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
