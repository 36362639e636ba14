package lnbits

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/lnurlp/internal/app/service"
	"go.uber.org/zap"
)

const rateKeyPrefix = "lnurlp:rate:"

// CachedRates keeps fiat rates in Redis for a short TTL so bursts of
// pay requests do not each hit the rate backend.
type CachedRates struct {
	next   service.RateOracle
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRates wraps next with a Redis cache.
func NewCachedRates(next service.RateOracle, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRates {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRates{next: next, redis: rdb, ttl: ttl, logger: logger}
}

// SatoshisPerUnit serves from cache when possible. Redis failures fall
// through to the backend.
func (c *CachedRates) SatoshisPerUnit(ctx context.Context, currency string) (float64, error) {
	key := rateKeyPrefix + strings.ToUpper(currency)

	rate, err := c.redis.Get(ctx, key).Float64()
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("rate cache read failed", zap.String("currency", currency), zap.Error(err))
	}

	rate, err = c.next.SatoshisPerUnit(ctx, currency)
	if err != nil {
		return 0, err
	}

	if err := c.redis.Set(ctx, key, rate, c.ttl).Err(); err != nil {
		c.logger.Warn("rate cache write failed", zap.String("currency", currency), zap.Error(err))
	}
	return rate, nil
}
