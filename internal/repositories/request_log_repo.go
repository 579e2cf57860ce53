package repositories

import (
	"context"

	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestLogRepository persists request telemetry
type RequestLogRepository interface {
	Insert(ctx context.Context, entry *models.RequestLog) error
}

// RequestLogRepositoryImpl implements RequestLogRepository
type RequestLogRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewRequestLogRepository creates a new request log repository
func NewRequestLogRepository(db *database.DB) RequestLogRepository {
	return &RequestLogRepositoryImpl{pool: db.Pool}
}

// Insert writes one telemetry row
func (r *RequestLogRepositoryImpl) Insert(ctx context.Context, entry *models.RequestLog) error {
	query := `
		INSERT INTO requests (key_id, path, method, status, latency_ms, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.KeyID,
		entry.Path,
		entry.Method,
		entry.Status,
		entry.LatencyMs,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}
