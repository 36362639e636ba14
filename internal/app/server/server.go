package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/lnurlp/config"
	"github.com/sifan077/lnurlp/internal/app/service"
	inthttp "github.com/sifan077/lnurlp/internal/http/handler"
	"github.com/sifan077/lnurlp/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles the services and infrastructure required by the HTTP server.
// Postgres and Redis are optional.
type Dependencies struct {
	Logger   *zap.Logger
	Config   *config.Config
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	LNURL    service.LNURLService
	Links    service.PayLinkService
	Settings service.SettingsService
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with all routes registered.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}

	app := fiber.New(fiber.Config{
		AppName:               "lnurlp",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.Metrics())
	s.app.Use(middleware.CORS())
}

func (s *Server) registerRoutes() {
	publicURL := s.deps.Config.Server.PublicURL

	// Management routes first so the LNURL catch-all never shadows them.
	inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:    s.deps.Logger,
		Links:     s.deps.Links,
		Settings:  s.deps.Settings,
		PublicURL: publicURL,
		AdminKey:  s.deps.Config.LNURLP.AdminKey,
	}).Register(s.app)

	inthttp.NewPageHandler(inthttp.PageDeps{
		Logger:    s.deps.Logger,
		Links:     s.deps.Links,
		PublicURL: publicURL,
	}).Register(s.app)

	var router fiber.Router = s.app
	if s.deps.Redis != nil {
		router = s.app.Group("/", middleware.RateLimit(s.deps.Redis, middleware.RateLimitConfig{
			MaxRequests: s.deps.Config.LNURLP.RateLimitMax,
			Window:      s.deps.Config.LNURLP.RateLimitWindow,
		}, s.deps.Logger))
	}

	lnurlDeps := inthttp.LNURLDeps{
		Logger:    s.deps.Logger,
		LNURL:     s.deps.LNURL,
		PublicURL: publicURL,
	}
	if s.deps.Postgres != nil {
		lnurlDeps.DB = s.deps.Postgres
	}
	inthttp.NewLNURLHandler(lnurlDeps).Register(router)
}
