package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	apprepository "github.com/sifan077/lnurlp/internal/app/repository"
	appserver "github.com/sifan077/lnurlp/internal/app/server"
	appservice "github.com/sifan077/lnurlp/internal/app/service"
	"github.com/sifan077/lnurlp/internal/infra/lnbits"
	infraNATS "github.com/sifan077/lnurlp/internal/infra/nats"
	infraPostgres "github.com/sifan077/lnurlp/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/lnurlp/internal/infra/prometheus"
	infraRedis "github.com/sifan077/lnurlp/internal/infra/redis"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the LNURL-pay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.close()

	var pool *pgxpool.Pool
	if cfg.Database.Driver != "sqlite" {
		pool, err = infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("Connected to Postgres successfully")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully",
			zap.String("redis_host", cfg.Redis.Host),
			zap.Int("redis_port", cfg.Redis.Port))
	}

	var publisher appservice.InvoicePublisher
	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			return err
		}
		defer natsConn.Drain()

		invoicePublisher := appservice.NewInvoicePublisher(js)
		if err := invoicePublisher.EnsureStream(); err != nil {
			return err
		}
		publisher = invoicePublisher
		log.Info("Connected to NATS successfully",
			zap.String("nats_host", cfg.NATS.Host),
			zap.Int("nats_port", cfg.NATS.Port))
	}

	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	backend := lnbits.NewClient(cfg.LNbits)
	var rates appservice.RateOracle = backend
	if redisClient != nil {
		rates = lnbits.NewCachedRates(backend, redisClient, cfg.LNbits.RateCacheTTL, log)
	}

	links := appservice.NewPayLinkService(apprepository.NewPayLinkRepository(db.gorm), log)
	if err := links.WarmUsernames(ctx); err != nil {
		return err
	}

	settings := appservice.NewSettingsService(appservice.SettingsDeps{
		Repo:       apprepository.NewSettingsRepository(db.gorm),
		Logger:     log,
		Fs:         afero.NewOsFs(),
		RelaysPath: cfg.LNURLP.RelaysFile,
	})

	lnurl := appservice.NewLNURLService(appservice.LNURLDeps{
		Links:         links,
		Rates:         rates,
		CallbackRates: backend,
		Invoices:      backend,
		Publisher:     publisher,
		Logger:        log,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:   log,
		Config:   cfg,
		Postgres: pool,
		Redis:    redisClient,
		LNURL:    lnurl,
		Links:    links,
		Settings: settings,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Server.Addr))
		errCh <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
