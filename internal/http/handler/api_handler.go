package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/sifan077/lnurlp/internal/app/service"
	"github.com/sifan077/lnurlp/internal/http/util"
	"go.uber.org/zap"
)

// WalletHeader carries the id of the wallet a management request acts for.
const WalletHeader = "X-Wallet-Id"

// AdminKeyHeader carries the operator key guarding the settings endpoints.
const AdminKeyHeader = "X-Admin-Key"

const maxCommentChars = 799

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Links     service.PayLinkService
	Settings  service.SettingsService
	PublicURL string

	// AdminKey unlocks /api/v1/settings. Empty disables those endpoints.
	AdminKey string
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	links       service.PayLinkService
	settings    service.SettingsService
	adminKey    string
	requestInfo requestInfoFunc
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		links:       deps.Links,
		settings:    deps.Settings,
		adminKey:    deps.AdminKey,
		requestInfo: newRequestInfo(deps.PublicURL),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api/v1")
	{
		links := api.Group("/links", h.requireWallet)
		{
			links.Get("/", h.ListLinks)
			links.Post("/", h.CreateLink)
			links.Get("/:id", h.GetLink)
			links.Put("/:id", h.UpdateLink)
			links.Delete("/:id", h.DeleteLink)
		}

		settings := api.Group("/settings", h.requireAdmin)
		{
			settings.Get("/", h.GetSettings)
			settings.Put("/", h.UpdateSettings)
			settings.Delete("/", h.DeleteSettings)
		}
	}
}

// PayLinkRequest is the body of create and update calls. Amounts are in
// satoshis, or in whole currency units when currency is set.
type PayLinkRequest struct {
	Description        string  `json:"description" validate:"required"`
	Min                float64 `json:"min" validate:"gt=0"`
	Max                float64 `json:"max" validate:"gt=0"`
	Currency           string  `json:"currency,omitempty" validate:"omitempty,max=8"`
	FiatBaseMultiplier int     `json:"fiat_base_multiplier,omitempty" validate:"omitempty,min=1"`
	Username           string  `json:"username,omitempty"`
	WebhookURL         string  `json:"webhook_url,omitempty" validate:"omitempty,url"`
	WebhookHeaders     string  `json:"webhook_headers,omitempty"`
	WebhookBody        string  `json:"webhook_body,omitempty"`
	SuccessText        string  `json:"success_text,omitempty"`
	SuccessURL         string  `json:"success_url,omitempty" validate:"omitempty,url"`
	CommentChars       int     `json:"comment_chars" validate:"min=0"`
	Zaps               bool    `json:"zaps"`
}

// PayLinkResponse is a stored pay link plus its encoded LNURL and,
// when a username is set, its lightning address. Min and Max are in the
// same units PayLinkRequest takes, so a response can be sent back as an
// update unchanged.
type PayLinkResponse struct {
	*model.PayLink
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	LNURL     string  `json:"lnurl"`
	LNAddress string  `json:"lnaddress,omitempty"`
}

// check applies the cross-field rules struct tags cannot express.
func (r *PayLinkRequest) check() error {
	if r.Min > r.Max {
		return errors.New("Min is greater than max.")
	}
	if r.Currency == "" && (math.Round(r.Min) != r.Min || math.Round(r.Max) != r.Max || r.Min < 1) {
		return errors.New("Must use full satoshis.")
	}
	if r.WebhookHeaders != "" && !json.Valid([]byte(r.WebhookHeaders)) {
		return errors.New("Invalid JSON in webhook_headers.")
	}
	if r.WebhookBody != "" && !json.Valid([]byte(r.WebhookBody)) {
		return errors.New("Invalid JSON in webhook_body.")
	}
	if r.SuccessURL != "" && !strings.HasPrefix(r.SuccessURL, "https://") {
		return errors.New("Success URL must be secure https://...")
	}
	if r.CommentChars > maxCommentChars {
		return errors.New("Comment chars must be at most 799.")
	}
	return nil
}

// storedBounds scales fiat bounds by the base multiplier.
func (r *PayLinkRequest) storedBounds() (float64, float64, int) {
	multiplier := r.FiatBaseMultiplier
	if multiplier <= 0 {
		multiplier = model.DefaultFiatBaseMultiplier
	}
	if r.Currency == "" {
		return r.Min, r.Max, multiplier
	}
	m := float64(multiplier)
	return math.Round(r.Min * m), math.Round(r.Max * m), multiplier
}

func (h *APIHandler) parsePayLinkRequest(c *fiber.Ctx) (*PayLinkRequest, error) {
	var req PayLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.New("invalid request body")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Username = strings.TrimSpace(req.Username)
	if err := service.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if err := req.check(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListLinks handles GET /api/v1/links. With all_wallets=true the
// comma separated "wallets" query joins the header wallet.
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	wallets := []string{walletID(c)}
	if c.QueryBool("all_wallets") {
		for _, w := range strings.Split(c.Query("wallets"), ",") {
			if w = strings.TrimSpace(w); w != "" && w != wallets[0] {
				wallets = append(wallets, w)
			}
		}
	}

	links, err := h.links.List(userContext(c), wallets...)
	if err != nil {
		h.logger.Error("failed to list pay links", zap.Error(err))
		return internalError(c)
	}

	response := make([]PayLinkResponse, 0, len(links))
	for i := range links {
		response = append(response, h.present(c, &links[i]))
	}
	return c.JSON(response)
}

// GetLink handles GET /api/v1/links/:id
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	link, ok, err := h.ownedLink(c)
	if !ok {
		return err
	}
	return c.JSON(h.present(c, link))
}

// CreateLink handles POST /api/v1/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	req, err := h.parsePayLinkRequest(c)
	if err != nil {
		return badRequest(c, err)
	}

	lo, hi, multiplier := req.storedBounds()
	link, err := h.links.Create(userContext(c), service.CreatePayLinkInput{
		Description:        req.Description,
		Min:                lo,
		Max:                hi,
		Currency:           req.Currency,
		FiatBaseMultiplier: multiplier,
		Username:           req.Username,
		WebhookURL:         req.WebhookURL,
		WebhookHeaders:     req.WebhookHeaders,
		WebhookBody:        req.WebhookBody,
		SuccessText:        req.SuccessText,
		SuccessURL:         req.SuccessURL,
		CommentChars:       req.CommentChars,
		Zaps:               req.Zaps,
	}, walletID(c))
	if err != nil {
		return h.linkError(c, err, "failed to create pay link")
	}

	return c.Status(fiber.StatusCreated).JSON(h.present(c, link))
}

// UpdateLink handles PUT /api/v1/links/:id. The body replaces every
// mutable field; empty optional strings clear them.
func (h *APIHandler) UpdateLink(c *fiber.Ctx) error {
	link, ok, err := h.ownedLink(c)
	if !ok {
		return err
	}

	req, err := h.parsePayLinkRequest(c)
	if err != nil {
		return badRequest(c, err)
	}

	lo, hi, multiplier := req.storedBounds()
	updated, err := h.links.Update(userContext(c), link.ID, service.UpdatePayLinkInput{
		Description:        &req.Description,
		Min:                &lo,
		Max:                &hi,
		Currency:           &req.Currency,
		FiatBaseMultiplier: &multiplier,
		Username:           &req.Username,
		WebhookURL:         &req.WebhookURL,
		WebhookHeaders:     &req.WebhookHeaders,
		WebhookBody:        &req.WebhookBody,
		SuccessText:        &req.SuccessText,
		SuccessURL:         &req.SuccessURL,
		CommentChars:       &req.CommentChars,
		Zaps:               &req.Zaps,
	})
	if err != nil {
		return h.linkError(c, err, "failed to update pay link")
	}

	return c.JSON(h.present(c, updated))
}

// DeleteLink handles DELETE /api/v1/links/:id
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	link, ok, err := h.ownedLink(c)
	if !ok {
		return err
	}

	if err := h.links.Delete(userContext(c), link.ID); err != nil {
		return h.linkError(c, err, "failed to delete pay link")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSettings handles GET /api/v1/settings
func (h *APIHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.GetOrCreate(userContext(c))
	if err != nil {
		h.logger.Error("failed to load settings", zap.Error(err))
		return internalError(c)
	}
	return c.JSON(settings)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *APIHandler) UpdateSettings(c *fiber.Ctx) error {
	var req model.ExtendedSettings
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, errors.New("invalid request body"))
	}

	settings, err := h.settings.Update(userContext(c), &req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return badRequest(c, err)
		}
		h.logger.Error("failed to update settings", zap.Error(err))
		return internalError(c)
	}
	return c.JSON(settings)
}

// DeleteSettings handles DELETE /api/v1/settings
func (h *APIHandler) DeleteSettings(c *fiber.Ctx) error {
	if err := h.settings.Delete(userContext(c)); err != nil {
		h.logger.Error("failed to delete settings", zap.Error(err))
		return internalError(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) requireWallet(c *fiber.Ctx) error {
	if walletID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "missing " + WalletHeader + " header",
		})
	}
	return c.Next()
}

func (h *APIHandler) requireAdmin(c *fiber.Ctx) error {
	if h.adminKey == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "settings are disabled, no admin key configured",
		})
	}
	key := strings.TrimSpace(c.Get(AdminKeyHeader))
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.adminKey)) != 1 {
		h.logger.Warn("rejected settings request", zap.String("ip", c.IP()), zap.Bool("key_present", key != ""))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "missing or invalid " + AdminKeyHeader + " header",
		})
	}
	return c.Next()
}

// ownedLink loads the :id link. When ok is false the error response has
// already been written and err is what the handler should return.
func (h *APIHandler) ownedLink(c *fiber.Ctx) (link *model.PayLink, ok bool, err error) {
	id := c.Params("id")
	link, err = h.links.Get(userContext(c), id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": "Pay link does not exist.",
			})
		}
		h.logger.Error("failed to get pay link", zap.Error(err), zap.String("id", id))
		return nil, false, internalError(c)
	}
	if link.Wallet != walletID(c) {
		return nil, false, c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"detail": "Not your pay link.",
		})
	}
	return link, true, nil
}

func (h *APIHandler) linkError(c *fiber.Ctx, err error, msg string) error {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"detail": err.Error()})
	case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrValidation):
		return badRequest(c, err)
	case errors.Is(err, repository.ErrLinkNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "Pay link does not exist."})
	default:
		h.logger.Error(msg, zap.Error(err))
		return internalError(c)
	}
}

func (h *APIHandler) present(c *fiber.Ctx, link *model.PayLink) PayLinkResponse {
	info := h.requestInfo(c)
	resp := PayLinkResponse{PayLink: link}
	resp.Min, resp.Max = link.Bounds()

	encoded, err := util.EncodeLNURL(info.BaseURL + "/" + link.ID)
	if err != nil {
		h.logger.Warn("failed to encode lnurl", zap.Error(err), zap.String("id", link.ID))
	}
	resp.LNURL = encoded

	if username := link.UsernameValue(); username != "" {
		resp.LNAddress = username + "@" + info.Domain
	}
	return resp
}

func walletID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(WalletHeader))
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
}

func internalError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"detail": "internal server error",
	})
}
