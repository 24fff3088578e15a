package service

import (
	"context"
	"time"

	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TaxRateSource provides the current tax rate as a percentage
type TaxRateSource interface {
	TaxRatePercent(ctx context.Context) (decimal.Decimal, error)
}

// TaxRateReader reads the tax rate from business configuration
type TaxRateReader interface {
	GetTaxRatePercent(ctx context.Context) (decimal.Decimal, error)
}

// TaxRateCache caches the tax rate between reads
type TaxRateCache interface {
	GetTaxRate(ctx context.Context) (decimal.Decimal, bool, error)
	SetTaxRate(ctx context.Context, rate decimal.Decimal, ttl time.Duration) error
}

// CachedTaxRate fronts the configuration table with a cache. Cache errors fall through
// to the table.
type CachedTaxRate struct {
	reader TaxRateReader
	cache  TaxRateCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedTaxRate creates a tax rate source. cache may be nil.
func NewCachedTaxRate(reader TaxRateReader, cache TaxRateCache, ttl time.Duration) *CachedTaxRate {
	return &CachedTaxRate{reader: reader, cache: cache, ttl: ttl, logger: util.GetLogger()}
}

// TaxRatePercent returns the configured tax rate
func (c *CachedTaxRate) TaxRatePercent(ctx context.Context) (decimal.Decimal, error) {
	if c.cache != nil {
		rate, found, err := c.cache.GetTaxRate(ctx)
		if err != nil {
			c.logger.Warn("Tax rate cache read failed", zap.Error(err))
		} else if found {
			return rate, nil
		}
	}

	rate, err := c.reader.GetTaxRatePercent(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	if c.cache != nil && c.ttl > 0 {
		if err := c.cache.SetTaxRate(ctx, rate, c.ttl); err != nil {
			c.logger.Warn("Tax rate cache write failed", zap.Error(err))
		}
	}
	return rate, nil
}
