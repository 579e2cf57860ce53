package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// UsageKeyRepository is the subset of APIKeyRepository methods needed by UsageService
type UsageKeyRepository interface {
	GetByID(ctx context.Context, keyID string) (*models.APIKey, error)
	GetLimits(ctx context.Context, keyID string) (models.QuotaLimits, error)
}

// UsageCounterRepository is the subset of UsageRepository methods needed by UsageService
type UsageCounterRepository interface {
	GetDailyCount(ctx context.Context, keyID string, day time.Time) (int64, error)
	GetMonthlySum(ctx context.Context, keyID string, start, end time.Time) (int64, error)
	ListDaily(ctx context.Context, keyID string, start, end time.Time) ([]models.DailyUsage, error)
}

// UsageService reports consumption against a key's limits
type UsageService struct {
	keys   UsageKeyRepository
	usage  UsageCounterRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageService creates a new UsageService
func NewUsageService(keys UsageKeyRepository, usage UsageCounterRepository, logger *slog.Logger) *UsageService {
	return &UsageService{
		keys:   keys,
		usage:  usage,
		logger: logger,
		now:    time.Now,
	}
}

// GetStatus returns the calling key's limits and current consumption
func (s *UsageService) GetStatus(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
	limits, err := s.keys.GetLimits(ctx, keyID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get limits", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.status(ctx, keyID, limits)
}

// GetStatusForKey returns the status of any key. Unknown keys are models.ErrNotFound.
func (s *UsageService) GetStatusForKey(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
	key, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.ErrorContext(ctx, "failed to get api key", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return s.status(ctx, keyID, key.Limits())
}

// ListDaily returns the key's per-day counters for the current month
func (s *UsageService) ListDaily(ctx context.Context, keyID string) ([]models.DailyUsage, error) {
	start, end := models.MonthRange(s.now())

	days, err := s.usage.ListDaily(ctx, keyID, start, end)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list daily usage", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if days == nil {
		days = []models.DailyUsage{}
	}
	return days, nil
}

func (s *UsageService) status(ctx context.Context, keyID string, limits models.QuotaLimits) (*models.QuotaStatus, error) {
	now := s.now()

	today, err := s.usage.GetDailyCount(ctx, keyID, models.DayStart(now))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get daily usage", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	start, end := models.MonthRange(now)
	month, err := s.usage.GetMonthlySum(ctx, keyID, start, end)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to get monthly usage", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.QuotaStatus{
		KeyID:  keyID,
		Limits: limits,
		Usage:  models.NewUsageStats(limits, today, month),
	}, nil
}
