package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/internal/app/model"
	"github.com/sifan077/lnurlp/internal/app/repository"
	"github.com/sifan077/lnurlp/internal/app/service"
	"github.com/sifan077/lnurlp/internal/http/util"
	"github.com/sifan077/lnurlp/internal/http/view"
	"go.uber.org/zap"
)

// PageDeps groups dependencies required by the pay link page.
type PageDeps struct {
	Logger    *zap.Logger
	Links     service.PayLinkService
	PublicURL string
}

// PageHandler renders the public, shareable pay link page.
type PageHandler struct {
	logger      *zap.Logger
	links       service.PayLinkService
	requestInfo requestInfoFunc
}

// NewPageHandler creates a page handler with the provided dependencies.
func NewPageHandler(deps PageDeps) *PageHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{
		logger:      logger,
		links:       deps.Links,
		requestInfo: newRequestInfo(deps.PublicURL),
	}
}

// Register wires the page route onto the provided router.
func (h *PageHandler) Register(router fiber.Router) {
	router.Get("/link/:id", h.Show)
}

// Show handles GET /link/:id
func (h *PageHandler) Show(c *fiber.Ctx) error {
	id := c.Params("id")
	link, err := h.links.Get(userContext(c), id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).SendString("Pay link does not exist.")
		}
		h.logger.Error("failed to load pay link page", zap.Error(err), zap.String("id", id))
		return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
	}

	info := h.requestInfo(c)
	encoded, err := util.EncodeLNURL(info.BaseURL + "/" + link.ID)
	if err != nil {
		h.logger.Error("failed to encode lnurl", zap.Error(err), zap.String("id", id))
		return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
	}

	data := view.PayLinkPageData{
		ID:           link.ID,
		Description:  link.Description,
		Range:        formatRange(link),
		LNURL:        encoded,
		CommentChars: link.CommentChars,
	}
	if username := link.UsernameValue(); username != "" {
		data.LightningAddress = username + "@" + info.Domain
	}

	html, err := view.RenderPayLinkPage(data)
	if err != nil {
		h.logger.Error("failed to render pay link page", zap.Error(err), zap.String("id", id))
		return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
	}

	c.Type("html", "utf-8")
	return c.SendString(html)
}

func formatRange(link *model.PayLink) string {
	lo, hi := link.Bounds()
	if cur := link.CurrencyCode(); cur != "" {
		return fmt.Sprintf("%s - %s %s", strconv.FormatFloat(lo, 'f', 2, 64), strconv.FormatFloat(hi, 'f', 2, 64), cur)
	}
	if lo == hi {
		return fmt.Sprintf("%.0f sat", lo)
	}
	return fmt.Sprintf("%.0f - %.0f sat", lo, hi)
}
