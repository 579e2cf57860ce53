package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/repositories"
	pkgauth "github.com/BradenHooton/metered-finance/pkg/auth"
	"github.com/BradenHooton/metered-finance/pkg/logger"
)

// CreateAPIKeyInput describes a new client credential. Nil limits take the configured defaults.
type CreateAPIKeyInput struct {
	Name               string
	Scopes             []models.Scope
	RateLimitPerMinute *int
	DailyQuota         *int
	MonthlyQuota       *int
}

// APIKeyService handles administrative API key management
type APIKeyService struct {
	repo     repositories.APIKeyRepository
	verifier *pkgauth.SecretVerifier
	audit    *logger.AuditLogger
	defaults models.QuotaLimits
	logger   *slog.Logger
}

// NewAPIKeyService creates a new APIKeyService
func NewAPIKeyService(repo repositories.APIKeyRepository, verifier *pkgauth.SecretVerifier, audit *logger.AuditLogger, defaults models.QuotaLimits, logger *slog.Logger) *APIKeyService {
	if !defaults.Valid() {
		defaults = models.DefaultQuotaLimits()
	}
	return &APIKeyService{
		repo:     repo,
		verifier: verifier,
		audit:    audit,
		defaults: defaults,
		logger:   logger,
	}
}

// CreateAPIKey generates a credential, stores its hash and returns the plaintext once
func (s *APIKeyService) CreateAPIKey(ctx context.Context, in CreateAPIKeyInput, ipAddress string) (*models.GeneratedAPIKey, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrBadRequest)
	}
	if err := models.ValidateScopes(in.Scopes); err != nil {
		return nil, err
	}

	limits := s.defaults
	if in.RateLimitPerMinute != nil {
		limits.RateLimitPerMinute = *in.RateLimitPerMinute
	}
	if in.DailyQuota != nil {
		limits.DailyQuota = *in.DailyQuota
	}
	if in.MonthlyQuota != nil {
		limits.MonthlyQuota = *in.MonthlyQuota
	}
	if !limits.Valid() {
		return nil, fmt.Errorf("%w: limits must be positive", models.ErrBadRequest)
	}

	plainKey, prefix, err := pkgauth.GenerateCredential()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate api key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The full credential is hashed so the stored hash binds the prefix to the secret
	secretHash, err := s.verifier.Hash(plainKey)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to hash api key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	apiKey := &models.APIKey{
		KeyID:              "key_" + uuid.New().String(),
		Prefix:             prefix,
		Name:               name,
		SecretHash:         secretHash,
		Scopes:             in.Scopes,
		Active:             true,
		RateLimitPerMinute: limits.RateLimitPerMinute,
		DailyQuota:         limits.DailyQuota,
		MonthlyQuota:       limits.MonthlyQuota,
		CreatedAt:          time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, apiKey); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "failed to create api key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogKeyAction(ctx, "api_key_created", apiKey.KeyID, ipAddress, map[string]string{
		"scopes": strings.Join(models.ScopeStrings(in.Scopes), ","),
	})

	return &models.GeneratedAPIKey{
		PlainKey: plainKey,
		APIKey:   apiKey,
	}, nil
}

// ListAPIKeys returns a page of keys and the total count
func (s *APIKeyService) ListAPIKeys(ctx context.Context, limit, offset int) ([]*models.APIKey, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	keys, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list api keys", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to count api keys", slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	for _, key := range keys {
		if key.Scopes == nil {
			key.Scopes = []models.Scope{}
		}
	}

	return keys, total, nil
}

// GetAPIKey retrieves a single key, active or not
func (s *APIKeyService) GetAPIKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	if keyID == "" {
		return nil, models.ErrBadRequest
	}

	key, err := s.repo.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.ErrorContext(ctx, "failed to get api key", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return key, nil
}

// UpdateAPIKey applies a partial update to status, scopes or limits
func (s *APIKeyService) UpdateAPIKey(ctx context.Context, keyID string, update models.APIKeyUpdate, ipAddress string) (*models.APIKey, error) {
	if keyID == "" {
		return nil, models.ErrBadRequest
	}
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: at least one field must be provided", models.ErrBadRequest)
	}
	if update.Scopes != nil {
		if err := models.ValidateScopes(update.Scopes); err != nil {
			return nil, err
		}
	}
	for _, limit := range []*int{update.RateLimitPerMinute, update.DailyQuota, update.MonthlyQuota} {
		if limit != nil && *limit <= 0 {
			return nil, fmt.Errorf("%w: limits must be positive", models.ErrBadRequest)
		}
	}

	key, err := s.repo.Update(ctx, keyID, update)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.ErrorContext(ctx, "failed to update api key", slog.String("key_id", keyID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogKeyAction(ctx, "api_key_updated", keyID, ipAddress, updateMetadata(update))

	return key, nil
}

// DeleteAPIKey removes a key permanently
func (s *APIKeyService) DeleteAPIKey(ctx context.Context, keyID string, ipAddress string) error {
	if keyID == "" {
		return models.ErrBadRequest
	}

	if err := s.repo.Delete(ctx, keyID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.ErrorContext(ctx, "failed to delete api key", slog.String("key_id", keyID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogKeyAction(ctx, "api_key_deleted", keyID, ipAddress, nil)

	return nil
}

// updateMetadata lists the changed fields for the audit record
func updateMetadata(update models.APIKeyUpdate) map[string]string {
	metadata := make(map[string]string)
	if update.Active != nil {
		metadata["active"] = strconv.FormatBool(*update.Active)
	}
	if update.Scopes != nil {
		metadata["scopes"] = strings.Join(models.ScopeStrings(update.Scopes), ",")
	}
	if update.RateLimitPerMinute != nil {
		metadata["rate_limit_per_minute"] = strconv.Itoa(*update.RateLimitPerMinute)
	}
	if update.DailyQuota != nil {
		metadata["daily_quota"] = strconv.Itoa(*update.DailyQuota)
	}
	if update.MonthlyQuota != nil {
		metadata["monthly_quota"] = strconv.Itoa(*update.MonthlyQuota)
	}
	return metadata
}
