package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/services"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
)

// maxBodyBytes caps admin request bodies
const maxBodyBytes = 64 << 10

// APIKeyServiceInterface defines the interface for API key operations
type APIKeyServiceInterface interface {
	CreateAPIKey(ctx context.Context, in services.CreateAPIKeyInput, ipAddress string) (*models.GeneratedAPIKey, error)
	ListAPIKeys(ctx context.Context, limit, offset int) ([]*models.APIKey, int, error)
	GetAPIKey(ctx context.Context, keyID string) (*models.APIKey, error)
	UpdateAPIKey(ctx context.Context, keyID string, update models.APIKeyUpdate, ipAddress string) (*models.APIKey, error)
	DeleteAPIKey(ctx context.Context, keyID string, ipAddress string) error
}

// APIKeyHandler handles administrative API key HTTP requests
type APIKeyHandler struct {
	service  APIKeyServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAPIKeyHandler creates a new APIKeyHandler
func NewAPIKeyHandler(service APIKeyServiceInterface, ipConfig *pkghttp.IPConfig) *APIKeyHandler {
	return &APIKeyHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// CreateAPIKeyRequest represents the request to create an API key
type CreateAPIKeyRequest struct {
	Name               string   `json:"name" validate:"required,min=1,max=255"`
	Scopes             []string `json:"scopes" validate:"required,min=1,unique,dive,scope"`
	RateLimitPerMinute *int     `json:"rate_limit_per_minute,omitempty" validate:"omitempty,gte=1"`
	DailyQuota         *int     `json:"daily_quota,omitempty" validate:"omitempty,gte=1"`
	MonthlyQuota       *int     `json:"monthly_quota,omitempty" validate:"omitempty,gte=1"`
}

// UpdateAPIKeyRequest represents a partial update; omitted fields are unchanged
type UpdateAPIKeyRequest struct {
	Active             *bool    `json:"active,omitempty"`
	Scopes             []string `json:"scopes,omitempty" validate:"omitempty,unique,dive,scope"`
	RateLimitPerMinute *int     `json:"rate_limit_per_minute,omitempty" validate:"omitempty,gte=1"`
	DailyQuota         *int     `json:"daily_quota,omitempty" validate:"omitempty,gte=1"`
	MonthlyQuota       *int     `json:"monthly_quota,omitempty" validate:"omitempty,gte=1"`
}

// CreateAPIKeyResponse carries the plaintext credential, shown once
type CreateAPIKeyResponse struct {
	APIKey  string         `json:"api_key"`
	Message string         `json:"message"`
	Key     *models.APIKey `json:"key"`
}

// ListAPIKeysResponse represents the response for listing API keys
type ListAPIKeysResponse struct {
	Keys   []*models.APIKey `json:"keys"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// Handlers

// CreateAPIKey POST /api/admin/keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	generated, err := h.service.CreateAPIKey(r.Context(), services.CreateAPIKeyInput{
		Name:               req.Name,
		Scopes:             toScopes(req.Scopes),
		RateLimitPerMinute: req.RateLimitPerMinute,
		DailyQuota:         req.DailyQuota,
		MonthlyQuota:       req.MonthlyQuota,
	}, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Return plaintext key ONLY once
	pkghttp.WriteJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		APIKey:  generated.PlainKey,
		Message: "Save this API key - it will not be shown again",
		Key:     generated.APIKey,
	})
}

// ListAPIKeys GET /api/admin/keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if err := parseIntParam(l, &limit, 1, 100); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if err := parseIntParam(o, &offset, 0, 1_000_000); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	keys, total, err := h.service.ListAPIKeys(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListAPIKeysResponse{
		Keys:   keys,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetAPIKey GET /api/admin/keys/{key_id}
func (h *APIKeyHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "invalid key id")
		return
	}

	key, err := h.service.GetAPIKey(r.Context(), keyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, key)
}

// UpdateAPIKey PATCH /api/admin/keys/{key_id}
func (h *APIKeyHandler) UpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "invalid key id")
		return
	}

	var req UpdateAPIKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	key, err := h.service.UpdateAPIKey(r.Context(), keyID, models.APIKeyUpdate{
		Active:             req.Active,
		Scopes:             toScopes(req.Scopes),
		RateLimitPerMinute: req.RateLimitPerMinute,
		DailyQuota:         req.DailyQuota,
		MonthlyQuota:       req.MonthlyQuota,
	}, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, key)
}

// DeleteAPIKey DELETE /api/admin/keys/{key_id}
func (h *APIKeyHandler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "invalid key id")
		return
	}

	if err := h.service.DeleteAPIKey(r.Context(), keyID, pkghttp.ExtractClientIP(r, h.ipConfig)); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

// toScopes keeps nil distinct from empty so an omitted field stays unchanged
func toScopes(raw []string) []models.Scope {
	if raw == nil {
		return nil
	}
	scopes := make([]models.Scope, len(raw))
	for i, s := range raw {
		scopes[i] = models.Scope(s)
	}
	return scopes
}

func parseIntParam(value string, dest *int, min, max int) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < min || n > max {
		return errors.New("parameter out of range")
	}
	*dest = n
	return nil
}

// writeServiceError maps service sentinels to the error envelope
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": "))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "api key not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "api key already exists")
	default:
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
