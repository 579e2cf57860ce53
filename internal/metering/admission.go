// Package metering decides whether an authenticated request may proceed and records
// the usage it consumes.
package metering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/BradenHooton/metered-finance/internal/metrics"
	"github.com/BradenHooton/metered-finance/internal/models"
)

// UsageStore holds policy limits and calendar-aligned quota counters
type UsageStore interface {
	GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error)
	GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error)
	GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error)
	IncrementDaily(ctx context.Context, keyID string, day time.Time, limit int) (int64, error)
}

// RateWindowStore holds per-minute admission counters. IncrementRateWindow must be a
// single atomic increment that returns the post-increment value.
type RateWindowStore interface {
	IncrementRateWindow(ctx context.Context, keyID string, windowStart time.Time) (int64, error)
}

// Config tunes admission checks
type Config struct {
	DefaultLimits      models.QuotaLimits
	CheckTimeout       time.Duration
	RetryAfter         time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		DefaultLimits:      models.DefaultQuotaLimits(),
		CheckTimeout:       5 * time.Second,
		RetryAfter:         60 * time.Second,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// AdmissionController applies the rate window, daily quota and monthly quota to
// Client traffic and counts each admitted request exactly once. Admin traffic is
// never metered.
//
// Store errors fail closed: the request is rejected with models.ErrInternalServer.
// A circuit breaker wraps the store round trips so a sustained outage rejects
// immediately instead of queueing requests behind a dead store.
type AdmissionController struct {
	usage   UsageStore
	windows RateWindowStore
	breaker *gobreaker.CircuitBreaker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewAdmissionController creates an AdmissionController. windows may be the same
// store as usage.
func NewAdmissionController(usage UsageStore, windows RateWindowStore, cfg Config, logger *slog.Logger) *AdmissionController {
	defaults := DefaultConfig()
	if !cfg.DefaultLimits.Valid() {
		cfg.DefaultLimits = defaults.DefaultLimits
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaults.CheckTimeout
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = defaults.RetryAfter
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = defaults.BreakerOpenTimeout
	}

	c := &AdmissionController{
		usage:   usage,
		windows: windows,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "metering-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		IsSuccessful: isStoreHealthy,
	})

	return c
}

// isStoreHealthy reports whether an error reflects the store's health.
// Guard misses, missing keys and client cancellations are not store failures.
func isStoreHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, models.ErrCounterAtLimit) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, context.Canceled)
}

// Admit returns nil if the request may proceed. Rejections are *models.RateLimitError,
// *models.QuotaError, or an error wrapping models.ErrInternalServer.
func (c *AdmissionController) Admit(ctx context.Context, ac models.AuthContext) error {
	switch ac.Kind {
	case models.AuthKindAdmin:
		metrics.RecordAdminBypass()
		return nil
	case models.AuthKindClient:
		return c.admitClient(ctx, ac.KeyID)
	default:
		panic(fmt.Sprintf("metering: unhandled auth kind %d", ac.Kind))
	}
}

// BreakerState exposes the breaker state for health reporting
func (c *AdmissionController) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *AdmissionController) admitClient(ctx context.Context, keyID string) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	outcome, err := c.evaluate(ctx, keyID, c.now().UTC())
	metrics.RecordAdmission(outcome, time.Since(start))

	if outcome == metrics.OutcomeError {
		c.logger.ErrorContext(ctx, "admission check failed, rejecting request",
			slog.String("key_id", keyID),
			slog.Any("error", err),
		)
	}
	return err
}

func (c *AdmissionController) evaluate(ctx context.Context, keyID string, now time.Time) (string, error) {
	limits, err := execute(c.breaker, func() (models.QuotaLimits, error) {
		return c.usage.GetLimits(ctx, keyID)
	})
	if errors.Is(err, models.ErrNotFound) {
		limits, err = c.cfg.DefaultLimits, nil
	}
	if err != nil {
		return metrics.OutcomeError, storeError("get limits", err)
	}
	if !limits.Valid() {
		limits = c.cfg.DefaultLimits
	}

	// Consume one unit of the rate window; the post-increment value decides.
	windowStart := now.Truncate(time.Minute)
	inWindow, err := execute(c.breaker, func() (int64, error) {
		return c.windows.IncrementRateWindow(ctx, keyID, windowStart)
	})
	if err != nil {
		return metrics.OutcomeError, storeError("increment rate window", err)
	}
	if inWindow > int64(limits.RateLimitPerMinute) {
		return metrics.OutcomeRateLimited, &models.RateLimitError{
			Limit:      limits.RateLimitPerMinute,
			RetryAfter: c.cfg.RetryAfter,
		}
	}

	today := models.DayStart(now)
	daily, err := execute(c.breaker, func() (int64, error) {
		return c.usage.GetDailyCount(ctx, keyID, today)
	})
	if err != nil {
		return metrics.OutcomeError, storeError("get daily count", err)
	}
	if daily >= int64(limits.DailyQuota) {
		return metrics.OutcomeQuotaDaily, &models.QuotaError{Period: models.QuotaDaily, Limit: limits.DailyQuota}
	}

	// Read-then-check: under a burst at the monthly boundary a few requests may
	// pass before the sum catches up. The daily guard below is exact.
	monthStart, monthEnd := models.MonthRange(now)
	monthly, err := execute(c.breaker, func() (int64, error) {
		return c.usage.GetMonthlySum(ctx, keyID, monthStart, monthEnd)
	})
	if err != nil {
		return metrics.OutcomeError, storeError("get monthly sum", err)
	}
	if monthly >= int64(limits.MonthlyQuota) {
		return metrics.OutcomeQuotaMonthly, &models.QuotaError{Period: models.QuotaMonthly, Limit: limits.MonthlyQuota}
	}

	_, err = execute(c.breaker, func() (int64, error) {
		return c.usage.IncrementDaily(ctx, keyID, today, limits.DailyQuota)
	})
	if errors.Is(err, models.ErrCounterAtLimit) {
		return metrics.OutcomeQuotaDaily, &models.QuotaError{Period: models.QuotaDaily, Limit: limits.DailyQuota}
	}
	if err != nil {
		return metrics.OutcomeError, storeError("increment daily usage", err)
	}

	return metrics.OutcomeAdmitted, nil
}

// execute runs fn through the breaker, preserving fn's result type
func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func storeError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: metering store unavailable: %v", models.ErrInternalServer, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrInternalServer, op, err)
}
