package repositories

import (
	"context"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// APIKeyRepository defines the interface for API key data access operations
type APIKeyRepository interface {
	// Create stores a new API key in the database
	Create(ctx context.Context, apiKey *models.APIKey) error

	// FindActiveByPrefix retrieves an active API key by its public prefix
	FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)

	// GetByID retrieves an API key by its ID (active or not)
	GetByID(ctx context.Context, keyID string) (*models.APIKey, error)

	// List retrieves all API keys, newest first
	List(ctx context.Context, limit, offset int) ([]*models.APIKey, error)

	// Count returns the total number of API keys
	Count(ctx context.Context) (int, error)

	// Update applies a partial update and returns the resulting record
	Update(ctx context.Context, keyID string, update models.APIKeyUpdate) (*models.APIKey, error)

	// Delete removes an API key
	Delete(ctx context.Context, keyID string) error

	// TouchLastUsed sets last_used_at to now (idempotent, best-effort)
	TouchLastUsed(ctx context.Context, keyID string) error

	// GetLimits returns the key's policy limits, or the configured defaults if the key is missing
	GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error)
}
