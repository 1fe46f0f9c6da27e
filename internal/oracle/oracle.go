// Package oracle quotes fiat/crypto exchange rates and converts booking
// amounts into the registry's native unit.
package oracle

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"farmrent/internal/util"

	"go.uber.org/zap"
)

// Quote is an exchange rate expressed as fiat units per one unit of asset.
type Quote struct {
	Fiat      string    `json:"fiat"`
	Asset     string    `json:"asset"`
	Rate      *big.Rat  `json:"-"`
	Source    string    `json:"source"`
	Fallback  bool      `json:"fallback"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RateString renders the rate with the given number of decimals.
func (q Quote) RateString(precision int) string {
	if q.Rate == nil {
		return ""
	}
	return q.Rate.FloatString(precision)
}

// Source fetches live rates from an upstream price feed.
type Source interface {
	Name() string
	FetchRate(ctx context.Context, fiat, asset string) (*big.Rat, error)
}

// RateCache stores recently fetched rates as exact rational strings.
type RateCache interface {
	GetRate(ctx context.Context, fiat, asset string) (string, bool, error)
	SetRate(ctx context.Context, fiat, asset, rate string, ttl time.Duration) error
}

// Config tunes the oracle.
type Config struct {
	FallbackRate *big.Rat
	Timeout      time.Duration
	CacheTTL     time.Duration
}

const (
	sourceCache    = "cache"
	sourceFallback = "fallback"
)

// Oracle resolves exchange rates from the cache, then the live source, and
// finally the configured fallback rate.
type Oracle struct {
	source   Source
	cache    RateCache
	fallback *big.Rat
	timeout  time.Duration
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an oracle. source and cache may be nil.
func New(source Source, cache RateCache, cfg Config) *Oracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	fallback := cfg.FallbackRate
	if fallback == nil || fallback.Sign() <= 0 {
		fallback = big.NewRat(200000, 1)
	}
	return &Oracle{
		source:   source,
		cache:    cache,
		fallback: new(big.Rat).Set(fallback),
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// GetExchangeRate never fails: any upstream problem yields the fallback quote.
func (o *Oracle) GetExchangeRate(ctx context.Context, fiat, asset string) Quote {
	fiat = strings.ToLower(strings.TrimSpace(fiat))
	asset = strings.ToLower(strings.TrimSpace(asset))

	if rate, ok := o.cached(ctx, fiat, asset); ok {
		return Quote{Fiat: fiat, Asset: asset, Rate: rate, Source: sourceCache, FetchedAt: o.now()}
	}

	if o.source == nil {
		return o.fallbackQuote(fiat, asset, "unconfigured", nil)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	rate, err := o.source.FetchRate(fetchCtx, fiat, asset)
	util.OracleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return o.fallbackQuote(fiat, asset, fallbackReason(err), err)
	}
	if rate == nil || rate.Sign() <= 0 {
		return o.fallbackQuote(fiat, asset, "invalid_rate", ErrInvalidRate)
	}

	if o.cache != nil && o.ttl > 0 {
		if err := o.cache.SetRate(ctx, fiat, asset, rate.RatString(), o.ttl); err != nil {
			o.logger.Warn("Failed to cache exchange rate", zap.Error(err))
		}
	}

	return Quote{Fiat: fiat, Asset: asset, Rate: rate, Source: o.source.Name(), FetchedAt: o.now()}
}

func (o *Oracle) cached(ctx context.Context, fiat, asset string) (*big.Rat, bool) {
	if o.cache == nil || o.ttl <= 0 {
		return nil, false
	}
	raw, ok, err := o.cache.GetRate(ctx, fiat, asset)
	if err != nil {
		o.logger.Warn("Rate cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	rate, valid := new(big.Rat).SetString(raw)
	if !valid || rate.Sign() <= 0 {
		return nil, false
	}
	return rate, true
}

func (o *Oracle) fallbackQuote(fiat, asset, reason string, err error) Quote {
	util.OracleFallbackTotal.WithLabelValues(reason).Inc()
	o.logger.Warn("Using fallback exchange rate",
		zap.String("fiat", fiat),
		zap.String("asset", asset),
		zap.String("reason", reason),
		zap.Error(err))

	return Quote{
		Fiat:      fiat,
		Asset:     asset,
		Rate:      new(big.Rat).Set(o.fallback),
		Source:    sourceFallback,
		Fallback:  true,
		FetchedAt: o.now(),
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUpstreamStatus):
		return "status"
	case errors.Is(err, ErrMalformedPayload):
		return "payload"
	case errors.Is(err, ErrInvalidRate):
		return "invalid_rate"
	default:
		return "transport"
	}
}
