package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/metered-finance/internal/handlers"
	"github.com/BradenHooton/metered-finance/internal/models"
)

func TestAPI_AdminProvisionedKeyIsMetered(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()

	perMinute := 3
	resp, err := ts.RequestAsAdmin(http.MethodPost, "/api/admin/keys", map[string]interface{}{
		"name":                  "metered client",
		"scopes":                []string{"client"},
		"rate_limit_per_minute": perMinute,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created handlers.CreateAPIKeyResponse
	require.NoError(t, ParseJSONResponse(resp, &created))
	require.NotEmpty(t, created.APIKey)
	keyID := created.Key.KeyID

	for i := 1; i <= perMinute; i++ {
		resp, err := ts.RequestWithKey(http.MethodGet, "/api/usage", created.APIKey, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status models.QuotaStatus
		require.NoError(t, ParseJSONResponse(resp, &status))
		assert.Equal(t, keyID, status.KeyID)
		assert.Equal(t, int64(i), status.Usage.Today, "the current request is already counted")
	}

	resp, err = ts.RequestWithKey(http.MethodGet, "/api/usage", created.APIKey, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	errResp, err := GetErrorResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Rate limit exceeded. Limit: 3 requests per minute", errResp.Message)

	require.NoError(t, ts.Drain())

	n, err := CountRequests(context.Background(), db.Pool, &keyID)
	require.NoError(t, err)
	assert.Equal(t, perMinute, n, "only admitted client requests are logged")

	n, err = CountRequests(context.Background(), db.Pool, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the admin create is logged without a key")
}

func TestAPI_DailyQuotaExhausted(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()
	ctx := context.Background()

	keyID := TestKeyID("daily")
	plainKey, _, err := SeedAPIKey(ctx, db.DB, ts.Verifier, keyID,
		[]models.Scope{models.ScopeClient}, TestLimits(100, 2, 1000))
	require.NoError(t, err)
	require.NoError(t, SeedDailyUsage(ctx, db.Pool, keyID, time.Now(), 2))

	resp, err := ts.RequestWithKey(http.MethodGet, "/api/usage", plainKey, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	errResp, err := GetErrorResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Daily quota exceeded. Limit: 2 requests", errResp.Message)
}

func TestAPI_CredentialFailuresAreIndistinguishable(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()
	ctx := context.Background()

	plainKey, key, err := SeedAPIKey(ctx, db.DB, ts.Verifier, TestKeyID("creds"),
		[]models.Scope{models.ScopeClient}, TestLimits(100, 100, 1000))
	require.NoError(t, err)

	credentials := map[string]string{
		"unknown prefix": "mf_0000000000000000_" + plainKey[len(key.Prefix)+1:],
		"wrong secret":   key.Prefix + "_notthesecretatall",
		"malformed":      "garbage",
	}

	for name, credential := range credentials {
		t.Run(name, func(t *testing.T) {
			resp, err := ts.RequestWithKey(http.MethodGet, "/api/usage", credential, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			errResp, err := GetErrorResponse(resp)
			require.NoError(t, err)
			assert.Equal(t, "Invalid API key", errResp.Message)
		})
	}
}

func TestAPI_ScopeRequiredForDailyReport(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()
	ctx := context.Background()

	clientOnly, _, err := SeedAPIKey(ctx, db.DB, ts.Verifier, TestKeyID("client"),
		[]models.Scope{models.ScopeClient}, TestLimits(100, 100, 1000))
	require.NoError(t, err)
	reporter, _, err := SeedAPIKey(ctx, db.DB, ts.Verifier, TestKeyID("reporter"),
		[]models.Scope{models.ScopeClient, models.ScopeReporting}, TestLimits(100, 100, 1000))
	require.NoError(t, err)

	resp, err := ts.RequestWithKey(http.MethodGet, "/api/usage/daily", clientOnly, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	errResp, err := GetErrorResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Missing required scope: reporting", errResp.Message)

	resp, err = ts.RequestWithKey(http.MethodGet, "/api/usage/daily", reporter, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var daily handlers.DailyUsageResponse
	require.NoError(t, ParseJSONResponse(resp, &daily))
	require.Len(t, daily.Days, 1)
	assert.Equal(t, int64(1), daily.Days[0].RequestCount)
}

func TestAPI_DeactivatedKeyIsRejected(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()
	ctx := context.Background()

	keyID := TestKeyID("deactivate")
	plainKey, _, err := SeedAPIKey(ctx, db.DB, ts.Verifier, keyID,
		[]models.Scope{models.ScopeClient}, TestLimits(100, 100, 1000))
	require.NoError(t, err)

	resp, err := ts.RequestWithKey(http.MethodGet, "/api/usage", plainKey, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.RequestAsAdmin(http.MethodPatch, "/api/admin/keys/"+keyID, map[string]interface{}{"active": false})
	require.NoError(t, err)
	var updated models.APIKey
	require.NoError(t, ParseJSONResponse(resp, &updated))
	assert.False(t, updated.Active)

	resp, err = ts.RequestWithKey(http.MethodGet, "/api/usage", plainKey, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = ts.RequestAsAdmin(http.MethodGet, "/api/admin/usage/"+keyID, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status models.QuotaStatus
	require.NoError(t, ParseJSONResponse(resp, &status))
	assert.Equal(t, int64(1), status.Usage.Today)

	resp, err = ts.RequestAsAdmin(http.MethodDelete, "/api/admin/keys/"+keyID, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.RequestAsAdmin(http.MethodGet, "/api/admin/keys/"+keyID, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AdminRoutesRejectClientKeys(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()

	plainKey, _, err := SeedAPIKey(context.Background(), db.DB, ts.Verifier, TestKeyID("notadmin"),
		[]models.Scope{models.ScopeClient, models.ScopeAdmin}, TestLimits(100, 100, 1000))
	require.NoError(t, err)

	resp, err := ts.RequestWithKey(http.MethodGet, "/api/admin/keys", plainKey, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	db := requireDB(t)
	ts := NewTestServer(db.DB)
	defer ts.Close()

	resp, err := ts.Request(http.MethodGet, "/health/live", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Request(http.MethodGet, "/health/ready", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health handlers.HealthResponse
	require.NoError(t, ParseJSONResponse(resp, &health))
	assert.Equal(t, "healthy", health.Status)
}
