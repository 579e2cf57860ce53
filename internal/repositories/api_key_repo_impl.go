package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const apiKeyColumns = `key_id, prefix, name, secret_hash, scopes, active,
	rate_limit_per_minute, daily_quota, monthly_quota, created_at, last_used_at`

// APIKeyRepositoryImpl implements APIKeyRepository
type APIKeyRepositoryImpl struct {
	pool     *pgxpool.Pool
	defaults models.QuotaLimits
}

// NewAPIKeyRepository creates a new API key repository. defaults are returned by
// GetLimits for keys that have no record.
func NewAPIKeyRepository(db *database.DB, defaults models.QuotaLimits) APIKeyRepository {
	if !defaults.Valid() {
		defaults = models.DefaultQuotaLimits()
	}
	return &APIKeyRepositoryImpl{pool: db.Pool, defaults: defaults}
}

// scanAPIKeyRow handles nullable fields and populates an APIKey model from a database row
func scanAPIKeyRow(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.APIKey, error) {
	var apiKey models.APIKey
	var scopes []string
	var lastUsedAt *time.Time

	err := scanner.Scan(
		&apiKey.KeyID,
		&apiKey.Prefix,
		&apiKey.Name,
		&apiKey.SecretHash,
		pq.Array(&scopes),
		&apiKey.Active,
		&apiKey.RateLimitPerMinute,
		&apiKey.DailyQuota,
		&apiKey.MonthlyQuota,
		&apiKey.CreatedAt,
		&lastUsedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	apiKey.Scopes = models.ParseScopes(scopes)
	apiKey.LastUsedAt = lastUsedAt

	return &apiKey, nil
}

// scanAPIKeyRows iterates through rows and scans each into APIKey models
func scanAPIKeyRows(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)

	for rows.Next() {
		apiKey, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		apiKeys = append(apiKeys, apiKey)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return apiKeys, nil
}

// Create stores a new API key in the database
func (r *APIKeyRepositoryImpl) Create(ctx context.Context, apiKey *models.APIKey) error {
	query := `
		INSERT INTO api_keys (key_id, prefix, name, secret_hash, scopes, active,
			rate_limit_per_minute, daily_quota, monthly_quota, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		apiKey.KeyID,
		apiKey.Prefix,
		apiKey.Name,
		apiKey.SecretHash,
		pq.Array(models.ScopeStrings(apiKey.Scopes)),
		apiKey.Active,
		apiKey.RateLimitPerMinute,
		apiKey.DailyQuota,
		apiKey.MonthlyQuota,
		apiKey.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// FindActiveByPrefix retrieves an active API key by prefix. Inactive and unknown
// prefixes both return models.ErrNotFound.
func (r *APIKeyRepositoryImpl) FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE prefix = $1 AND active = TRUE
		LIMIT 1
	`

	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, prefix))
}

// GetByID retrieves an API key by its ID
func (r *APIKeyRepositoryImpl) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_id = $1
	`

	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, keyID))
}

// List retrieves API keys (paginated)
func (r *APIKeyRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + `
		FROM api_keys
		ORDER BY created_at DESC, key_id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}

	return scanAPIKeyRows(rows)
}

// Count returns the count of API keys
func (r *APIKeyRepositoryImpl) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// Update applies the non-nil fields of update in a single statement
func (r *APIKeyRepositoryImpl) Update(ctx context.Context, keyID string, update models.APIKeyUpdate) (*models.APIKey, error) {
	if update.IsEmpty() {
		return r.GetByID(ctx, keyID)
	}

	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Active != nil {
		add("active", *update.Active)
	}
	if update.Scopes != nil {
		add("scopes", pq.Array(models.ScopeStrings(update.Scopes)))
	}
	if update.RateLimitPerMinute != nil {
		add("rate_limit_per_minute", *update.RateLimitPerMinute)
	}
	if update.DailyQuota != nil {
		add("daily_quota", *update.DailyQuota)
	}
	if update.MonthlyQuota != nil {
		add("monthly_quota", *update.MonthlyQuota)
	}

	args = append(args, keyID)
	query := fmt.Sprintf(`UPDATE api_keys SET %s WHERE key_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), apiKeyColumns)

	return scanAPIKeyRow(r.pool.QueryRow(ctx, query, args...))
}

// Delete removes an API key. Usage rows are kept for reporting.
func (r *APIKeyRepositoryImpl) Delete(ctx context.Context, keyID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE key_id = $1`, keyID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// TouchLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepositoryImpl) TouchLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE key_id = $1`

	_, err := r.pool.Exec(ctx, query, keyID)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// GetLimits returns the key's limits, falling back to defaults when the key has no record
func (r *APIKeyRepositoryImpl) GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error) {
	query := `
		SELECT rate_limit_per_minute, daily_quota, monthly_quota
		FROM api_keys
		WHERE key_id = $1
	`

	var limits models.QuotaLimits
	err := r.pool.QueryRow(ctx, query, keyID).Scan(
		&limits.RateLimitPerMinute,
		&limits.DailyQuota,
		&limits.MonthlyQuota,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.defaults, nil
	}
	if err != nil {
		return models.QuotaLimits{}, database.MapPostgresError(err)
	}

	return limits, nil
}
