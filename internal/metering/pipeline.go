package metering

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/metered-finance/internal/auth"
	"github.com/BradenHooton/metered-finance/internal/background"
	"github.com/BradenHooton/metered-finance/internal/metrics"
	"github.com/BradenHooton/metered-finance/internal/models"
	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
	"github.com/BradenHooton/metered-finance/pkg/logger"
)

// ClientAuthenticator resolves an API key
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, credential string) (models.AuthContext, error)
}

// AdminVerifier checks the shared admin credential
type AdminVerifier interface {
	Authenticate(presented string) (models.AuthContext, error)
}

// Admitter makes the rate and quota decision
type Admitter interface {
	Admit(ctx context.Context, ac models.AuthContext) error
}

// TelemetryStore persists one row per admitted request
type TelemetryStore interface {
	Insert(ctx context.Context, entry *models.RequestLog) error
}

// TaskSubmitter accepts fire-and-forget jobs
type TaskSubmitter interface {
	Submit(name string, fn background.JobFunc) bool
}

// PipelineDeps wires the pipeline's collaborators
type PipelineDeps struct {
	Keys         ClientAuthenticator
	Admin        AdminVerifier
	Admission    Admitter
	Telemetry    TelemetryStore
	Tasks        TaskSubmitter
	Audit        *logger.AuditLogger
	IPConfig     *pkghttp.IPConfig
	Logger       *slog.Logger
	CheckTimeout time.Duration
}

// Pipeline is the ordered request stage: authenticate, authorize, admit, handle,
// then record telemetry off the request path.
type Pipeline struct {
	deps PipelineDeps
}

// NewPipeline creates a Pipeline
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.CheckTimeout <= 0 {
		deps.CheckTimeout = DefaultConfig().CheckTimeout
	}
	return &Pipeline{deps: deps}
}

// Client meters API-key traffic. If scope is non-empty the key must hold it.
func (p *Pipeline) Client(scope models.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authCtx, cancel := context.WithTimeout(ctx, p.deps.CheckTimeout)
			ac, err := p.deps.Keys.Authenticate(authCtx, r.Header.Get(auth.APIKeyHeader))
			cancel()
			p.audit(r, "api_key_auth", models.AuthKindClient, ac, err)
			if err != nil {
				WriteRejection(w, err)
				return
			}

			if scope != "" {
				if err := auth.RequireScope(ac, scope); err != nil {
					p.deps.Logger.InfoContext(ctx, "request missing scope",
						slog.String("key_id", ac.KeyID),
						slog.String("scope", scope.String()),
					)
					WriteRejection(w, err)
					return
				}
			}

			p.admitAndServe(w, r, ac, next)
		})
	}
}

// Admin authenticates the shared admin credential. Admin traffic is not metered.
func (p *Pipeline) Admin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := p.deps.Admin.Authenticate(r.Header.Get(auth.AdminKeyHeader))
			p.audit(r, "admin_auth", models.AuthKindAdmin, ac, err)
			if err != nil {
				WriteRejection(w, err)
				return
			}

			p.admitAndServe(w, r, ac, next)
		})
	}
}

func (p *Pipeline) admitAndServe(w http.ResponseWriter, r *http.Request, ac models.AuthContext, next http.Handler) {
	ctx := r.Context()

	if err := p.deps.Admission.Admit(ctx, ac); err != nil {
		WriteRejection(w, err)
		return
	}

	start := time.Now()
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	next.ServeHTTP(ww, r.WithContext(auth.WithAuthContext(ctx, ac)))

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	p.recordTelemetry(&models.RequestLog{
		KeyID:     telemetryKeyID(ac),
		Path:      r.URL.Path,
		Method:    r.Method,
		Status:    status,
		LatencyMs: int(time.Since(start).Milliseconds()),
		Timestamp: start.UTC(),
	})
}

func telemetryKeyID(ac models.AuthContext) *string {
	keyID, ok := ac.ClientKeyID()
	if !ok {
		return nil
	}
	return &keyID
}

// recordTelemetry queues the write; a full queue or failed insert never reaches the caller
func (p *Pipeline) recordTelemetry(entry *models.RequestLog) {
	if p.deps.Telemetry == nil || p.deps.Tasks == nil {
		return
	}
	p.deps.Tasks.Submit("telemetry", func(ctx context.Context) error {
		return p.deps.Telemetry.Insert(ctx, entry)
	})
}

func (p *Pipeline) audit(r *http.Request, eventType string, tier models.AuthKind, ac models.AuthContext, err error) {
	success := err == nil
	metrics.RecordAuth(tier.String(), success)

	if p.deps.Audit == nil {
		return
	}

	event := logger.AuditEvent{
		EventType: eventType,
		Tier:      tier.String(),
		IPAddress: pkghttp.ExtractClientIP(r, p.deps.IPConfig),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Success:   success,
	}
	if success {
		if keyID, ok := ac.ClientKeyID(); ok {
			event.KeyID = keyID
		}
	} else {
		event.FailureReason = auth.FailureReason(err)
	}
	p.deps.Audit.LogAuthAttempt(r.Context(), event)
}
