package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"go.uber.org/zap"
)

const defaultCounterTimeout = 5 * time.Second

// RateOracle converts fiat to satoshis.
type RateOracle interface {
	// SatoshisPerUnit returns how many satoshis one unit of currency buys.
	SatoshisPerUnit(ctx context.Context, currency string) (float64, error)
}

// InvoiceRequest is what the wallet backend needs to issue an invoice.
type InvoiceRequest struct {
	WalletID            string
	AmountSat           int64
	Memo                string
	UnhashedDescription []byte
	Extra               map[string]interface{}
}

// Invoice is a created lightning invoice.
type Invoice struct {
	PaymentHash    string
	PaymentRequest string
}

// InvoiceCreator issues invoices on behalf of a wallet.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
}

// InvoicePublisher announces created invoices.
type InvoicePublisher interface {
	Publish(event model.InvoiceEvent) error
}

// RequestInfo carries what the protocol needs from the HTTP request.
type RequestInfo struct {
	// BaseURL is scheme://host[:port] used to build the callback.
	BaseURL string
	// Domain goes into the text/identifier metadata entry.
	Domain string
}

// CallbackParams are the query parameters of step two. Amount is the raw
// millisatoshi query value; it is parsed only once the link is known.
type CallbackParams struct {
	RequestInfo
	Amount  string
	Comment string
}

// LNURLService implements the two LNURL-pay exchanges.
type LNURLService interface {
	PayRequestByID(ctx context.Context, id string, info RequestInfo) (*PayResponse, error)
	PayRequestByUsername(ctx context.Context, username string, info RequestInfo) (*PayResponse, error)
	Callback(ctx context.Context, id string, params CallbackParams) (*CallbackResponse, error)
}

// LNURLDeps groups dependencies required by the LNURL service.
type LNURLDeps struct {
	Links     PayLinkService
	Invoices  InvoiceCreator
	Publisher InvoicePublisher
	Logger    *zap.Logger

	// Rates prices step one and may be cached.
	Rates RateOracle

	// CallbackRates prices step two and must not be cached. Defaults to Rates.
	CallbackRates RateOracle
}

type lnurlService struct {
	links          PayLinkService
	rates          RateOracle
	callbackRates  RateOracle
	invoices       InvoiceCreator
	publisher      InvoicePublisher
	logger         *zap.Logger
	counterTimeout time.Duration
}

// NewLNURLService returns the protocol implementation.
func NewLNURLService(deps LNURLDeps) LNURLService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	callbackRates := deps.CallbackRates
	if callbackRates == nil {
		callbackRates = deps.Rates
	}
	return &lnurlService{
		links:          deps.Links,
		rates:          deps.Rates,
		callbackRates:  callbackRates,
		invoices:       deps.Invoices,
		publisher:      deps.Publisher,
		logger:         logger,
		counterTimeout: defaultCounterTimeout,
	}
}

// PayRequestByID serves step one for a direct link id. Unknown ids
// return repository.ErrLinkNotFound.
func (s *lnurlService) PayRequestByID(ctx context.Context, id string, info RequestInfo) (*PayResponse, error) {
	link, err := s.links.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.payRequest(ctx, link, info)
}

// PayRequestByUsername serves step one for a lightning address. Unknown
// usernames produce a ProtocolError.
func (s *lnurlService) PayRequestByUsername(ctx context.Context, username string, info RequestInfo) (*PayResponse, error) {
	link, err := s.links.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, protocolErrorf("Address not found.")
		}
		return nil, err
	}
	return s.payRequest(ctx, link, info)
}

func (s *lnurlService) payRequest(ctx context.Context, link *model.PayLink, info RequestInfo) (*PayResponse, error) {
	rate, err := s.rate(ctx, s.rates, link)
	if err != nil {
		return nil, err
	}

	go s.bump(link.ID, repository.CounterDelta{ServedMeta: 1})

	minSendable, maxSendable := advertisedBounds(link, rate)
	resp := &PayResponse{
		Tag:         payRequestTag,
		Callback:    info.BaseURL + CallbackPath + link.ID,
		Metadata:    Metadata(link, info.Domain),
		MinSendable: minSendable,
		MaxSendable: maxSendable,
	}
	if link.CommentChars > 0 {
		resp.CommentAllowed = link.CommentChars
	}
	return resp, nil
}

// Callback serves step two: validate amount and comment, then issue the invoice.
func (s *lnurlService) Callback(ctx context.Context, id string, params CallbackParams) (*CallbackResponse, error) {
	link, err := s.links.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	amount, err := strconv.ParseInt(params.Amount, 10, 64)
	if err != nil || amount < 0 {
		return nil, protocolErrorf("Invalid amount.")
	}

	rate, err := s.rate(ctx, s.callbackRates, link)
	if err != nil {
		return nil, err
	}

	minMsat, maxMsat := acceptedBounds(link, rate)
	if amount < minMsat {
		return nil, protocolErrorf("Amount %d is smaller than minimum %d.", amount, minMsat)
	}
	if amount > maxMsat {
		return nil, protocolErrorf("Amount %d is greater than maximum %d.", amount, maxMsat)
	}

	if n := utf8.RuneCountInString(params.Comment); n > link.CommentChars {
		return nil, protocolErrorf("Got a comment with %d characters, but can only accept %d", n, link.CommentChars)
	}

	s.bump(link.ID, repository.CounterDelta{ServedPR: 1})

	invoice, err := s.invoices.CreateInvoice(ctx, InvoiceRequest{
		WalletID:            link.Wallet,
		AmountSat:           amount / 1000,
		Memo:                link.Description,
		UnhashedDescription: []byte(Metadata(link, params.Domain)),
		Extra: map[string]interface{}{
			"tag":     invoiceTag,
			"link":    link.ID,
			"comment": params.Comment,
			"extra":   strconv.FormatInt(amount, 10),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	if s.publisher != nil {
		go s.publish(link, invoice, amount, params.Comment)
	}

	return &CallbackResponse{
		PR:            invoice.PaymentRequest,
		Routes:        []interface{}{},
		SuccessAction: SuccessActionFor(link),
	}, nil
}

func (s *lnurlService) rate(ctx context.Context, oracle RateOracle, link *model.PayLink) (float64, error) {
	currency := link.CurrencyCode()
	if currency == "" {
		return 1, nil
	}
	rate, err := oracle.SatoshisPerUnit(ctx, currency)
	if err != nil {
		return 0, fmt.Errorf("fiat rate for %s: %w", currency, err)
	}
	return rate, nil
}

// bump increments served counters; failures are logged because they
// must not fail the payment flow.
func (s *lnurlService) bump(id string, delta repository.CounterDelta) {
	ctx, cancel := context.WithTimeout(context.Background(), s.counterTimeout)
	defer cancel()

	if _, err := s.links.Increment(ctx, id, delta); err != nil {
		s.logger.Warn("failed to increment pay link counters",
			zap.String("id", id),
			zap.Int64("served_meta", delta.ServedMeta),
			zap.Int64("served_pr", delta.ServedPR),
			zap.Error(err))
	}
}

func (s *lnurlService) publish(link *model.PayLink, invoice *Invoice, amountMsat int64, comment string) {
	event := model.InvoiceEvent{
		ID:          uuid.New().String(),
		LinkID:      link.ID,
		Wallet:      link.Wallet,
		PaymentHash: invoice.PaymentHash,
		AmountMsat:  amountMsat,
		Comment:     comment,
		CreatedAt:   time.Now().UTC(),
	}
	if link.WebhookURL != nil {
		event.WebhookURL = *link.WebhookURL
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error("failed to publish invoice event", zap.Error(err), zap.String("link_id", link.ID))
	}
}
