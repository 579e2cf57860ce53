package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/metered-finance/internal/auth"
	"github.com/BradenHooton/metered-finance/internal/background"
	"github.com/BradenHooton/metered-finance/internal/database"
	"github.com/BradenHooton/metered-finance/internal/handlers"
	"github.com/BradenHooton/metered-finance/internal/metering"
	middlewareCustom "github.com/BradenHooton/metered-finance/internal/middleware"
	"github.com/BradenHooton/metered-finance/internal/models"
	"github.com/BradenHooton/metered-finance/internal/repositories"
	"github.com/BradenHooton/metered-finance/internal/routes"
	"github.com/BradenHooton/metered-finance/internal/services"
	pkgauth "github.com/BradenHooton/metered-finance/pkg/auth"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
	pkglogger "github.com/BradenHooton/metered-finance/pkg/logger"
)

// TestAdminKey is the shared admin credential configured on every test server
const TestAdminKey = "integration-admin-key"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Verifier *pkgauth.SecretVerifier

	queue  *background.WorkQueue
	logger *slog.Logger
}

// NewTestServer initializes the complete HTTP stack over a real database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	defaults := models.DefaultQuotaLimits()
	verifier := NewTestVerifier()

	apiKeyRepo := repositories.NewAPIKeyRepository(db, defaults)
	usageRepo := repositories.NewUsageRepository(db)
	requestLogRepo := repositories.NewRequestLogRepository(db)

	queue := background.NewWorkQueue(logger, 2, 256, 5*time.Second)
	queue.Start()

	keyAuthenticator, err := auth.NewKeyAuthenticator(apiKeyRepo, verifier, queue, logger)
	if err != nil {
		panic(err)
	}

	admission := metering.NewAdmissionController(usageRepo, usageRepo, metering.Config{
		DefaultLimits:      defaults,
		CheckTimeout:       2 * time.Second,
		RetryAfter:         60 * time.Second,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
	}, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := &pkghttp.IPConfig{}

	pipeline := metering.NewPipeline(metering.PipelineDeps{
		Keys:         keyAuthenticator,
		Admin:        auth.NewAdminAuthenticator(TestAdminKey),
		Admission:    admission,
		Telemetry:    requestLogRepo,
		Tasks:        queue,
		Audit:        auditLogger,
		IPConfig:     ipConfig,
		Logger:       logger,
		CheckTimeout: 2 * time.Second,
	})

	h := routes.Handlers{
		APIKeys: handlers.NewAPIKeyHandler(services.NewAPIKeyService(apiKeyRepo, verifier, auditLogger, defaults, logger), ipConfig),
		Usage:   handlers.NewUsageHandler(services.NewUsageService(apiKeyRepo, usageRepo, logger)),
		Health:  handlers.NewHealthHandler(db, admission),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	ipLimit := middlewareCustom.RateLimitByIP(middlewareCustom.RateLimitConfig{RequestsPerMinute: 10_000}, ipConfig)
	routes.RegisterRoutes(r, pipeline, h, ipLimit)

	return &TestServer{
		Server:   httptest.NewServer(r),
		DB:       db,
		Verifier: verifier,
		queue:    queue,
		logger:   logger,
	}
}

// Drain waits for queued telemetry and last-used writes to finish.
// The queue accepts no work afterwards, so call it once at the end of a test.
func (ts *TestServer) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ts.queue.Stop(ctx)
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	_ = ts.Drain()
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithKey makes a request authenticated with a client API key
func (ts *TestServer) RequestWithKey(method, path, apiKey string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{auth.APIKeyHeader: apiKey})
}

// RequestAsAdmin makes a request authenticated with the admin credential
func (ts *TestServer) RequestAsAdmin(method, path string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{auth.AdminKeyHeader: TestAdminKey})
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorResponse decodes an error body
func GetErrorResponse(resp *http.Response) (pkghttp.ErrorResponse, error) {
	var errResp pkghttp.ErrorResponse
	err := ParseJSONResponse(resp, &errResp)
	return errResp, err
}
