package metering

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/metered-finance/internal/models"
)

var testNow = time.Date(2026, 6, 15, 10, 20, 5, 0, time.UTC)

func newTestController(store *memoryStore, cfg Config) *AdmissionController {
	c := NewAdmissionController(store, store, cfg, slog.New(slog.DiscardHandler))
	c.now = func() time.Time { return testNow }
	return c
}

func clientCtx(keyID string) models.AuthContext {
	return models.ClientContext(keyID, []models.Scope{models.ScopeClient})
}

func TestAdmit_RateBoundUnderConcurrency(t *testing.T) {
	const limit = 20
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: limit, DailyQuota: 1000, MonthlyQuota: 10000}
	c := newTestController(store, DefaultConfig())

	var admitted, rateLimited, other atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Admit(context.Background(), clientCtx("key_1"))
			var rateErr *models.RateLimitError
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.As(err, &rateErr):
				rateLimited.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, admitted.Load(), int32(limit))
	assert.Equal(t, int32(limit), admitted.Load())
	assert.Equal(t, int32(limit), rateLimited.Load())
	assert.Zero(t, other.Load())
	assert.Equal(t, int64(limit), store.dailyCount("key_1", testNow), "only admitted requests consume quota")
}

func TestAdmit_DailyCounterMonotonic(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 3, DailyQuota: 100, MonthlyQuota: 1000}
	c := newTestController(store, DefaultConfig())

	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Admit(context.Background(), clientCtx("key_1")))
		assert.Equal(t, int64(i), store.dailyCount("key_1", testNow))
	}

	for i := 0; i < 5; i++ {
		err := c.Admit(context.Background(), clientCtx("key_1"))
		assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
		assert.Equal(t, int64(3), store.dailyCount("key_1", testNow), "rejected requests never increment")
	}
}

func TestAdmit_BoundaryIsExclusive(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 1000, DailyQuota: 100, MonthlyQuota: 100000}
	store.daily[dayKey("key_1", testNow)] = 99
	c := newTestController(store, DefaultConfig())

	require.NoError(t, c.Admit(context.Background(), clientCtx("key_1")))
	assert.Equal(t, int64(100), store.dailyCount("key_1", testNow))

	err := c.Admit(context.Background(), clientCtx("key_1"))
	var quotaErr *models.QuotaError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, models.QuotaDaily, quotaErr.Period)
	assert.Equal(t, 100, quotaErr.Limit)
	assert.Equal(t, int64(100), store.dailyCount("key_1", testNow))
}

func TestAdmit_AdminBypass(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("store must not be consulted")
	c := newTestController(store, DefaultConfig())

	for i := 0; i < 10000; i++ {
		require.NoError(t, c.Admit(context.Background(), models.AdminContext()))
	}
	assert.Zero(t, store.callCount())
}

func TestAdmit_FivePerMinuteScenario(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 5, DailyQuota: 1000, MonthlyQuota: 10000}
	c := newTestController(store, DefaultConfig())

	base := time.Date(2026, 6, 15, 10, 20, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i*2) * time.Second)
		c.now = func() time.Time { return at }
		require.NoError(t, c.Admit(context.Background(), clientCtx("key_1")), "request %d", i+1)
	}

	c.now = func() time.Time { return base.Add(45 * time.Second) }
	err := c.Admit(context.Background(), clientCtx("key_1"))
	var rateErr *models.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 5, rateErr.Limit)
	assert.Equal(t, 60*time.Second, rateErr.RetryAfter)

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	assert.NoError(t, c.Admit(context.Background(), clientCtx("key_1")), "next window admits again")
}

func TestAdmit_DailyQuotaScenario(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 100, DailyQuota: 3, MonthlyQuota: 10000}
	c := newTestController(store, DefaultConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Admit(context.Background(), clientCtx("key_1")))
	}

	err := c.Admit(context.Background(), clientCtx("key_1"))
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	assert.Equal(t, int64(3), store.dailyCount("key_1", testNow))
}

func TestAdmit_MonthlyQuota(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 100, DailyQuota: 100, MonthlyQuota: 50}
	store.priorMonthly["key_1"] = 50
	c := newTestController(store, DefaultConfig())

	err := c.Admit(context.Background(), clientCtx("key_1"))
	var quotaErr *models.QuotaError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, models.QuotaMonthly, quotaErr.Period)
	assert.Equal(t, 50, quotaErr.Limit)
	assert.Zero(t, store.dailyCount("key_1", testNow))
}

func TestAdmit_ConcurrentDailyGuard(t *testing.T) {
	const quota = 10
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 1000, DailyQuota: quota, MonthlyQuota: 10000}
	c := newTestController(store, DefaultConfig())

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Admit(context.Background(), clientCtx("key_1")) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(quota), admitted.Load())
	assert.Equal(t, int64(quota), store.dailyCount("key_1", testNow))
}

func TestAdmit_MissingKeyUsesDefaults(t *testing.T) {
	store := newMemoryStore()
	cfg := DefaultConfig()
	cfg.DefaultLimits = models.QuotaLimits{RateLimitPerMinute: 2, DailyQuota: 100, MonthlyQuota: 1000}
	c := newTestController(store, cfg)

	require.NoError(t, c.Admit(context.Background(), clientCtx("ghost")))
	require.NoError(t, c.Admit(context.Background(), clientCtx("ghost")))

	err := c.Admit(context.Background(), clientCtx("ghost"))
	var rateErr *models.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 2, rateErr.Limit)
}

func TestAdmit_StoreErrorFailsClosed(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.DefaultQuotaLimits()
	store.err = errors.New("connection refused")
	c := newTestController(store, DefaultConfig())

	err := c.Admit(context.Background(), clientCtx("key_1"))
	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.NotErrorIs(t, err, models.ErrRateLimitExceeded)
	assert.NotErrorIs(t, err, models.ErrQuotaExceeded)
	assert.Zero(t, store.dailyCount("key_1", testNow))
}

func TestAdmit_TimeoutIsStoreError(t *testing.T) {
	store := newMemoryStore()
	store.block = true
	cfg := DefaultConfig()
	cfg.CheckTimeout = 20 * time.Millisecond
	c := newTestController(store, cfg)

	start := time.Now()
	err := c.Admit(context.Background(), clientCtx("key_1"))
	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAdmit_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")
	cfg := DefaultConfig()
	cfg.BreakerFailures = 3
	cfg.BreakerOpenTimeout = time.Hour
	c := newTestController(store, cfg)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Admit(context.Background(), clientCtx("key_1")), models.ErrInternalServer)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState())

	calls := store.callCount()
	err := c.Admit(context.Background(), clientCtx("key_1"))
	assert.ErrorIs(t, err, models.ErrInternalServer, "open breaker still fails closed")
	assert.Equal(t, calls, store.callCount(), "open breaker does not touch the store")
}

func TestAdmit_RejectionsDoNotTripBreaker(t *testing.T) {
	store := newMemoryStore()
	store.limits["key_1"] = models.QuotaLimits{RateLimitPerMinute: 1, DailyQuota: 100, MonthlyQuota: 1000}
	cfg := DefaultConfig()
	cfg.BreakerFailures = 2
	c := newTestController(store, cfg)

	require.NoError(t, c.Admit(context.Background(), clientCtx("key_1")))
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, c.Admit(context.Background(), clientCtx("key_1")), models.ErrRateLimitExceeded)
	}
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState())
}

func TestAdmit_UnknownKindPanics(t *testing.T) {
	c := newTestController(newMemoryStore(), DefaultConfig())

	assert.Panics(t, func() {
		_ = c.Admit(context.Background(), models.AuthContext{})
	})
}
