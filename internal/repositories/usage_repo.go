package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// UsageRepository defines the counters behind rate limiting and quotas.
// Every mutation is a single store-native statement; callers never read-modify-write.
type UsageRepository interface {
	// IncrementRateWindow adds one to the key's window counter and returns the post-increment value
	IncrementRateWindow(ctx context.Context, keyID string, windowStart time.Time) (int64, error)

	// CleanupRateWindows deletes windows that started before the cutoff
	CleanupRateWindows(ctx context.Context, before time.Time) (int64, error)

	// GetDailyCount returns the admitted count for the key on the given UTC day
	GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error)

	// GetMonthlySum returns the sum of daily counters in [start, end)
	GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error)

	// IncrementDaily upserts the day's counter by one while it is below limit.
	// Returns models.ErrCounterAtLimit without incrementing when the counter has reached limit.
	IncrementDaily(ctx context.Context, keyID string, day time.Time, limit int) (int64, error)

	// ListDaily returns per-day counters in [start, end), ordered by day
	ListDaily(ctx context.Context, keyID string, start, end time.Time) ([]models.DailyUsage, error)
}
