// Package oracle resolves current mint prices, fronting the aggregator's
// price API with a short-lived Redis cache.
package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/tng25/lino/internal/domain"
)

// PriceSource is the upstream quote provider.
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// PriceCache stores recent quotes so a burst of positions on the same mint
// does not fan out into repeated upstream calls.
type PriceCache interface {
	GetPrice(ctx context.Context, mint string) (float64, time.Time, error)
	SetPrice(ctx context.Context, mint string, price float64, ts time.Time) error
}

// Oracle implements domain.PriceOracle. Unavailability is not an error:
// Price returns ok=false and the caller skips the tick.
type Oracle struct {
	source PriceSource
	cache  PriceCache
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.PriceOracle = (*Oracle)(nil)

// New creates an Oracle. cache may be nil (every lookup goes upstream).
// maxAge bounds how stale a cached quote may be before it is refreshed.
func New(source PriceSource, cache PriceCache, maxAge time.Duration, logger *slog.Logger) *Oracle {
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &Oracle{
		source: source,
		cache:  cache,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "oracle")),
		now:    time.Now,
	}
}

// Price returns the current price for mint. ok=false means no usable quote
// right now; the caller retries on a later tick.
func (o *Oracle) Price(ctx context.Context, mint string) (float64, bool) {
	now := o.now()

	if o.cache != nil {
		price, ts, err := o.cache.GetPrice(ctx, mint)
		if err == nil && price > 0 && now.Sub(ts) <= o.maxAge {
			return price, true
		}
	}

	price, err := o.source.Price(ctx, mint)
	if err != nil || price <= 0 {
		if err != nil {
			o.logger.Debug("price unavailable",
				slog.String("mint", mint),
				slog.String("error", err.Error()))
		}
		return 0, false
	}

	if o.cache != nil {
		if err := o.cache.SetPrice(ctx, mint, price, now); err != nil {
			o.logger.Debug("price cache write failed",
				slog.String("mint", mint),
				slog.String("error", err.Error()))
		}
	}
	return price, true
}
