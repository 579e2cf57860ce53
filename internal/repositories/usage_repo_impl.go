package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepositoryImpl implements UsageRepository on Postgres
type UsageRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) UsageRepository {
	return &UsageRepositoryImpl{pool: db.Pool}
}

// IncrementRateWindow upserts the window row and returns the new count in one statement
func (r *UsageRepositoryImpl) IncrementRateWindow(ctx context.Context, keyID string, windowStart time.Time) (int64, error) {
	query := `
		INSERT INTO rate_limits (key_id, window_start, request_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key_id, window_start)
		DO UPDATE SET request_count = rate_limits.request_count + 1
		RETURNING request_count
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, keyID, windowStart.UTC()).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// CleanupRateWindows deletes expired rate windows
func (r *UsageRepositoryImpl) CleanupRateWindows(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, before.UTC())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return tag.RowsAffected(), nil
}

// GetDailyCount returns the day's counter, zero when no row exists yet
func (r *UsageRepositoryImpl) GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error) {
	query := `
		SELECT COALESCE(
			(SELECT request_count FROM quota_usage WHERE key_id = $1 AND usage_date = $2),
			0)
	`

	var count int64
	if err := r.pool.QueryRow(ctx, query, keyID, models.DayStart(day)).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// GetMonthlySum sums the daily counters for the range
func (r *UsageRepositoryImpl) GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(request_count), 0)::BIGINT
		FROM quota_usage
		WHERE key_id = $1 AND usage_date >= $2 AND usage_date < $3
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, keyID, models.DayStart(start), models.DayStart(end)).Scan(&sum); err != nil {
		return 0, database.MapPostgresError(err)
	}

	return sum, nil
}

// IncrementDaily is a conditional upsert: the conflict update only fires while
// request_count < limit, so concurrent admissions cannot push the day past its quota.
func (r *UsageRepositoryImpl) IncrementDaily(ctx context.Context, keyID string, day time.Time, limit int) (int64, error) {
	if limit < 1 {
		return 0, models.ErrCounterAtLimit
	}

	query := `
		INSERT INTO quota_usage (key_id, usage_date, request_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key_id, usage_date)
		DO UPDATE SET request_count = quota_usage.request_count + 1
		WHERE quota_usage.request_count < $3
		RETURNING request_count
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, keyID, models.DayStart(day), limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrCounterAtLimit
	}
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// ListDaily returns per-day counters for the range
func (r *UsageRepositoryImpl) ListDaily(ctx context.Context, keyID string, start, end time.Time) ([]models.DailyUsage, error) {
	query := `
		SELECT key_id, usage_date, request_count
		FROM quota_usage
		WHERE key_id = $1 AND usage_date >= $2 AND usage_date < $3
		ORDER BY usage_date
	`

	rows, err := r.pool.Query(ctx, query, keyID, models.DayStart(start), models.DayStart(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	usage := make([]models.DailyUsage, 0)
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.KeyID, &d.UsageDate, &d.RequestCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		usage = append(usage, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return usage, nil
}
