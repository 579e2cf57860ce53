package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/metered-finance/internal/auth"
	"github.com/BradenHooton/metered-finance/internal/models"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
)

// UsageServiceInterface defines the usage reporting contract
type UsageServiceInterface interface {
	GetStatus(ctx context.Context, keyID string) (*models.QuotaStatus, error)
	GetStatusForKey(ctx context.Context, keyID string) (*models.QuotaStatus, error)
	ListDaily(ctx context.Context, keyID string) ([]models.DailyUsage, error)
}

// UsageHandler serves quota and usage reports
type UsageHandler struct {
	service UsageServiceInterface
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(service UsageServiceInterface) *UsageHandler {
	return &UsageHandler{service: service}
}

// DailyUsageResponse lists this month's per-day counters
type DailyUsageResponse struct {
	KeyID string              `json:"key_id"`
	Days  []models.DailyUsage `json:"days"`
}

// GetUsage GET /api/usage
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	keyID, ok := clientKeyID(r)
	if !ok {
		pkghttp.WriteForbidden(w, "usage is reported for API keys only")
		return
	}

	status, err := h.service.GetStatus(r.Context(), keyID)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to get usage")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// GetDailyUsage GET /api/usage/daily
func (h *UsageHandler) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	keyID, ok := clientKeyID(r)
	if !ok {
		pkghttp.WriteForbidden(w, "usage is reported for API keys only")
		return
	}

	days, err := h.service.ListDaily(r.Context(), keyID)
	if err != nil {
		pkghttp.WriteInternalError(w, "failed to get daily usage")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, DailyUsageResponse{KeyID: keyID, Days: days})
}

// GetKeyUsage GET /api/admin/usage/{key_id}
func (h *UsageHandler) GetKeyUsage(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")
	if keyID == "" {
		pkghttp.WriteBadRequest(w, "invalid key id")
		return
	}

	status, err := h.service.GetStatusForKey(r.Context(), keyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

func clientKeyID(r *http.Request) (string, bool) {
	ac, ok := auth.GetAuthFromRequest(r)
	if !ok {
		return "", false
	}
	return ac.ClientKeyID()
}
