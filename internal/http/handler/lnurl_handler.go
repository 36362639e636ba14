package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/sifan077/lnurlp/internal/app/service"
	"github.com/sifan077/lnurlp/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LNURLDeps groups dependencies required by the LNURL handlers.
type LNURLDeps struct {
	Logger    *zap.Logger
	LNURL     service.LNURLService
	DB        Pinger
	PublicURL string
}

// LNURLHandler serves the wallet-facing LNURL-pay endpoints.
type LNURLHandler struct {
	logger      *zap.Logger
	lnurl       service.LNURLService
	db          Pinger
	requestInfo requestInfoFunc
}

// NewLNURLHandler creates an LNURL handler with the provided dependencies.
func NewLNURLHandler(deps LNURLDeps) *LNURLHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LNURLHandler{
		logger:      logger,
		lnurl:       deps.LNURL,
		db:          deps.DB,
		requestInfo: newRequestInfo(deps.PublicURL),
	}
}

// Register wires LNURL routes onto the provided router. The catch-all
// "/:link_id" must stay last.
func (h *LNURLHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/.well-known/lnurlp/:username", h.WellKnown)
	router.Get(service.CallbackPath+":link_id", h.Callback)
	// Backwards compatibility for old LNURLs / QR codes.
	router.Get("/api/v1/lnurl/:link_id", h.PayRequest)
	router.Get("/:link_id", h.PayRequest)
}

// Health reports service liveness and, when a pool is configured,
// database reachability.
func (h *LNURLHandler) Health(c *fiber.Ctx) error {
	status, code := "ok", fiber.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(userContext(c), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("database ping failed", zap.Error(err))
			status, code = "degraded", fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(fiber.Map{
		"service": "lnurlp",
		"status":  status,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// WellKnown handles GET /.well-known/lnurlp/:username. Unknown addresses
// answer with an LNURL error payload, not a 404.
func (h *LNURLHandler) WellKnown(c *fiber.Ctx) error {
	username := c.Params("username")

	resp, err := h.lnurl.PayRequestByUsername(userContext(c), username, h.requestInfo(c))
	if err != nil {
		return h.fail(c, err, "address", zap.String("username", username))
	}

	prometheus.PayRequestsTotal.WithLabelValues("address", prometheus.ResultOK).Inc()
	return c.JSON(resp)
}

// PayRequest handles GET /:link_id and the deprecated /api/v1/lnurl/:link_id.
func (h *LNURLHandler) PayRequest(c *fiber.Ctx) error {
	id := c.Params("link_id")

	resp, err := h.lnurl.PayRequestByID(userContext(c), id, h.requestInfo(c))
	if err != nil {
		return h.fail(c, err, "link", zap.String("link_id", id))
	}

	prometheus.PayRequestsTotal.WithLabelValues("link", prometheus.ResultOK).Inc()
	return c.JSON(resp)
}

// Callback handles GET /api/v1/lnurl/cb/:link_id?amount=&comment=.
func (h *LNURLHandler) Callback(c *fiber.Ctx) error {
	id := c.Params("link_id")
	amount := c.Query("amount")

	resp, err := h.lnurl.Callback(userContext(c), id, service.CallbackParams{
		RequestInfo: h.requestInfo(c),
		Amount:      amount,
		Comment:     c.Query("comment"),
	})
	if err != nil {
		return h.fail(c, err, "callback", zap.String("link_id", id), zap.String("amount", amount))
	}

	prometheus.CallbacksTotal.WithLabelValues(prometheus.ResultOK).Inc()
	return c.JSON(resp)
}

// fail maps service errors onto LNURL responses: protocol errors travel
// as 200 payloads, unknown link ids as 404, the rest as 500.
func (h *LNURLHandler) fail(c *fiber.Ctx, err error, entry string, fields ...zap.Field) error {
	var perr *service.ProtocolError
	switch {
	case errors.As(err, &perr):
		h.record(entry, prometheus.ResultProtocolError)
		h.logger.Debug("lnurl protocol error", append(fields, zap.String("reason", perr.Reason))...)
		return c.JSON(perr.Response())
	case errors.Is(err, repository.ErrLinkNotFound):
		h.record(entry, prometheus.ResultNotFound)
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"detail": "Pay link does not exist.",
		})
	default:
		h.record(entry, prometheus.ResultError)
		h.logger.Error("lnurl request failed", append(fields, zap.Error(err))...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "internal server error",
		})
	}
}

func (h *LNURLHandler) record(entry, result string) {
	if entry == "callback" {
		prometheus.CallbacksTotal.WithLabelValues(result).Inc()
		return
	}
	prometheus.PayRequestsTotal.WithLabelValues(entry, result).Inc()
}
