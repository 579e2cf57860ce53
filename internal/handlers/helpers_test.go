package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/metered-finance/internal/auth"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/services"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
)

// newTestRequest creates an HTTP request with a JSON body
func newTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withClientContext attaches a Client AuthContext as the metering pipeline would
func withClientContext(req *http.Request, keyID string, scopes ...models.Scope) *http.Request {
	ctx := auth.WithAuthContext(req.Context(), models.ClientContext(keyID, scopes))
	return req.WithContext(ctx)
}

// withAdminContext attaches the Admin AuthContext
func withAdminContext(req *http.Request) *http.Request {
	return req.WithContext(auth.WithAuthContext(req.Context(), models.AdminContext()))
}

// withURLParam sets a chi route parameter
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// assertJSONResponse checks that response has correct status and decodes JSON body
func assertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// assertErrorResponse checks that response is a valid error response
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// mockAPIKeyService implements handlers.APIKeyServiceInterface
type mockAPIKeyService struct {
	CreateFunc func(ctx context.Context, in services.CreateAPIKeyInput, ipAddress string) (*models.GeneratedAPIKey, error)
	ListFunc   func(ctx context.Context, limit, offset int) ([]*models.APIKey, int, error)
	GetFunc    func(ctx context.Context, keyID string) (*models.APIKey, error)
	UpdateFunc func(ctx context.Context, keyID string, update models.APIKeyUpdate, ipAddress string) (*models.APIKey, error)
	DeleteFunc func(ctx context.Context, keyID string, ipAddress string) error
}

func (m *mockAPIKeyService) CreateAPIKey(ctx context.Context, in services.CreateAPIKeyInput, ipAddress string) (*models.GeneratedAPIKey, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateFunc(ctx, in, ipAddress)
}

func (m *mockAPIKeyService) ListAPIKeys(ctx context.Context, limit, offset int) ([]*models.APIKey, int, error) {
	if m.ListFunc == nil {
		return []*models.APIKey{}, 0, nil
	}
	return m.ListFunc(ctx, limit, offset)
}

func (m *mockAPIKeyService) GetAPIKey(ctx context.Context, keyID string) (*models.APIKey, error) {
	if m.GetFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetFunc(ctx, keyID)
}

func (m *mockAPIKeyService) UpdateAPIKey(ctx context.Context, keyID string, update models.APIKeyUpdate, ipAddress string) (*models.APIKey, error) {
	if m.UpdateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateFunc(ctx, keyID, update, ipAddress)
}

func (m *mockAPIKeyService) DeleteAPIKey(ctx context.Context, keyID string, ipAddress string) error {
	if m.DeleteFunc == nil {
		return nil
	}
	return m.DeleteFunc(ctx, keyID, ipAddress)
}

// mockUsageService implements handlers.UsageServiceInterface
type mockUsageService struct {
	GetStatusFunc       func(ctx context.Context, keyID string) (*models.QuotaStatus, error)
	GetStatusForKeyFunc func(ctx context.Context, keyID string) (*models.QuotaStatus, error)
	ListDailyFunc       func(ctx context.Context, keyID string) ([]models.DailyUsage, error)
}

func (m *mockUsageService) GetStatus(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
	if m.GetStatusFunc == nil {
		return &models.QuotaStatus{KeyID: keyID}, nil
	}
	return m.GetStatusFunc(ctx, keyID)
}

func (m *mockUsageService) GetStatusForKey(ctx context.Context, keyID string) (*models.QuotaStatus, error) {
	if m.GetStatusForKeyFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetStatusForKeyFunc(ctx, keyID)
}

func (m *mockUsageService) ListDaily(ctx context.Context, keyID string) ([]models.DailyUsage, error) {
	if m.ListDailyFunc == nil {
		return []models.DailyUsage{}, nil
	}
	return m.ListDailyFunc(ctx, keyID)
}
