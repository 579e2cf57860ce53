package services

import (
	"context"
	"time"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// MockAPIKeyRepository implements APIKeyRepository for testing
type MockAPIKeyRepository struct {
	CreateFunc             func(ctx context.Context, apiKey *models.APIKey) error
	FindActiveByPrefixFunc func(ctx context.Context, prefix string) (*models.APIKey, error)
	GetByIDFunc            func(ctx context.Context, keyID string) (*models.APIKey, error)
	ListFunc               func(ctx context.Context, limit, offset int) ([]*models.APIKey, error)
	CountFunc              func(ctx context.Context) (int, error)
	UpdateFunc             func(ctx context.Context, keyID string, update models.APIKeyUpdate) (*models.APIKey, error)
	DeleteFunc             func(ctx context.Context, keyID string) error
	TouchLastUsedFunc      func(ctx context.Context, keyID string) error
	GetLimitsFunc          func(ctx context.Context, keyID string) (models.QuotaLimits, error)
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, apiKey)
	}
	return nil
}

func (m *MockAPIKeyRepository) FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	if m.FindActiveByPrefixFunc != nil {
		return m.FindActiveByPrefixFunc(ctx, prefix)
	}
	return nil, models.ErrNotFound
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, keyID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAPIKeyRepository) List(ctx context.Context, limit, offset int) ([]*models.APIKey, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.APIKey{}, nil
}

func (m *MockAPIKeyRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockAPIKeyRepository) Update(ctx context.Context, keyID string, update models.APIKeyUpdate) (*models.APIKey, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, keyID, update)
	}
	return nil, models.ErrNotFound
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, keyID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, keyID)
	}
	return nil
}

func (m *MockAPIKeyRepository) TouchLastUsed(ctx context.Context, keyID string) error {
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, keyID)
	}
	return nil
}

func (m *MockAPIKeyRepository) GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error) {
	if m.GetLimitsFunc != nil {
		return m.GetLimitsFunc(ctx, keyID)
	}
	return models.DefaultQuotaLimits(), nil
}

// MockUsageRepository implements UsageCounterRepository for testing
type MockUsageRepository struct {
	GetDailyCountFunc func(ctx context.Context, keyID string, day time.Time) (int64, error)
	GetMonthlySumFunc func(ctx context.Context, keyID string, start, end time.Time) (int64, error)
	ListDailyFunc     func(ctx context.Context, keyID string, start, end time.Time) ([]models.DailyUsage, error)
}

func (m *MockUsageRepository) GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error) {
	if m.GetDailyCountFunc != nil {
		return m.GetDailyCountFunc(ctx, keyID, day)
	}
	return 0, nil
}

func (m *MockUsageRepository) GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error) {
	if m.GetMonthlySumFunc != nil {
		return m.GetMonthlySumFunc(ctx, keyID, start, end)
	}
	return 0, nil
}

func (m *MockUsageRepository) ListDaily(ctx context.Context, keyID string, start, end time.Time) ([]models.DailyUsage, error) {
	if m.ListDailyFunc != nil {
		return m.ListDailyFunc(ctx, keyID, start, end)
	}
	return nil, nil
}
