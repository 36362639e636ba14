package handler

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/lnurlp/internal/app/service"
)

// requestInfoFunc derives callback base and metadata domain for a request.
type requestInfoFunc func(c *fiber.Ctx) service.RequestInfo

// newRequestInfo prefers the configured public URL and falls back to
// the request's own scheme and host.
func newRequestInfo(publicURL string) requestInfoFunc {
	publicURL = strings.TrimRight(publicURL, "/")
	if publicURL != "" {
		if u, err := url.Parse(publicURL); err == nil && u.Host != "" {
			info := service.RequestInfo{BaseURL: publicURL, Domain: u.Host}
			return func(*fiber.Ctx) service.RequestInfo { return info }
		}
	}
	return func(c *fiber.Ctx) service.RequestInfo {
		return service.RequestInfo{BaseURL: c.BaseURL(), Domain: c.Hostname()}
	}
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
