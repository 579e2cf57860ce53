package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/metered-finance/internal/handlers"
	"github.com/BradenHooton/metered-finance/internal/models"
)

func TestGetUsage_Success_Returns200(t *testing.T) {
	svc := &mockUsageService{
		GetStatusFunc: func(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
			limits := models.DefaultQuotaLimits()
			return &models.QuotaStatus{KeyID: keyID, Limits: limits, Usage: models.NewUsageStats(limits, 10, 100)}, nil
		},
	}
	h := handlers.NewUsageHandler(svc)

	req := withClientContext(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "key_1", models.ScopeClient)
	w := httptest.NewRecorder()
	h.GetUsage(w, req)

	var status models.QuotaStatus
	assertJSONResponse(t, w, http.StatusOK, &status)
	assert.Equal(t, "key_1", status.KeyID)
	assert.Equal(t, int64(10), status.Usage.Today)
	assert.Equal(t, int64(models.DefaultDailyQuota-10), status.Usage.DailyRemaining)
}

func TestGetUsage_RequiresClientContext(t *testing.T) {
	h := handlers.NewUsageHandler(&mockUsageService{})

	w := httptest.NewRecorder()
	h.GetUsage(w, withAdminContext(httptest.NewRequest(http.MethodGet, "/api/usage", nil)))
	assertErrorResponse(t, w, http.StatusForbidden, "forbidden")

	w = httptest.NewRecorder()
	h.GetUsage(w, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assertErrorResponse(t, w, http.StatusForbidden, "forbidden")
}

func TestGetUsage_ServiceError_Returns500(t *testing.T) {
	svc := &mockUsageService{
		GetStatusFunc: func(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
			return nil, models.ErrInternalServer
		},
	}
	h := handlers.NewUsageHandler(svc)

	w := httptest.NewRecorder()
	h.GetUsage(w, withClientContext(httptest.NewRequest(http.MethodGet, "/api/usage", nil), "key_1"))
	assertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
}

func TestGetDailyUsage_Success_Returns200(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	svc := &mockUsageService{
		ListDailyFunc: func(ctx context.Context, keyID string) ([]models.DailyUsage, error) {
			return []models.DailyUsage{{KeyID: keyID, UsageDate: day, RequestCount: 12}}, nil
		},
	}
	h := handlers.NewUsageHandler(svc)

	req := withClientContext(httptest.NewRequest(http.MethodGet, "/api/usage/daily", nil), "key_1", models.ScopeReporting)
	w := httptest.NewRecorder()
	h.GetDailyUsage(w, req)

	var resp handlers.DailyUsageResponse
	assertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "key_1", resp.KeyID)
	if assert.Len(t, resp.Days, 1) {
		assert.Equal(t, int64(12), resp.Days[0].RequestCount)
		assert.True(t, day.Equal(resp.Days[0].UsageDate))
	}
}

func TestGetKeyUsage(t *testing.T) {
	tests := []struct {
		name       string
		keyID      string
		err        error
		wantStatus int
	}{
		{"existing key", "key_1", nil, http.StatusOK},
		{"unknown key", "key_404", models.ErrNotFound, http.StatusNotFound},
		{"store failure", "key_500", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockUsageService{
				GetStatusForKeyFunc: func(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return &models.QuotaStatus{KeyID: keyID}, nil
				},
			}
			h := handlers.NewUsageHandler(svc)

			req := withURLParam(withAdminContext(httptest.NewRequest(http.MethodGet, "/api/admin/usage/"+tt.keyID, nil)), "key_id", tt.keyID)
			w := httptest.NewRecorder()
			h.GetKeyUsage(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
