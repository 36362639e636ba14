package main

import (
	"context"
	"fmt"

	apprepository "github.com/sifan077/lnurlp/internal/app/repository"
	infraPostgres "github.com/sifan077/lnurlp/internal/infra/postgres"
	infraSQLite "github.com/sifan077/lnurlp/internal/infra/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type database struct {
	gorm *gorm.DB
}

// openDatabase connects the configured driver and migrates the schema.
func openDatabase(ctx context.Context) (*database, error) {
	var (
		gormDB *gorm.DB
		err    error
	)
	switch cfg.Database.Driver {
	case "", "postgres":
		log.Info("Opening Postgres database",
			zap.String("postgres_user", cfg.Postgres.User),
			zap.String("postgres_host", cfg.Postgres.Host),
			zap.Int("postgres_port", cfg.Postgres.Port),
			zap.String("postgres_db", cfg.Postgres.Database),
		)
		gormDB, err = infraPostgres.NewGorm(cfg.Postgres)
	case "sqlite":
		log.Info("Opening SQLite database", zap.String("path", cfg.Database.SQLitePath))
		gormDB, err = infraSQLite.Open(cfg.Database.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	db := &database{gorm: gormDB}
	if err := apprepository.Migrate(ctx, gormDB); err != nil {
		db.close()
		return nil, err
	}
	return db, nil
}

func (d *database) close() {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}
}
