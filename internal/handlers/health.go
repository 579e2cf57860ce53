package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	pkghttp "github.com/BradenHooton/metered-finance/pkg/http"
)

// Pinger checks a dependency's reachability
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// BreakerReporter exposes the metering circuit breaker state
type BreakerReporter interface {
	BreakerState() gobreaker.State
}

// HealthHandler reports database reachability and metering store state
type HealthHandler struct {
	db      Pinger
	breaker BreakerReporter
}

// NewHealthHandler creates a new HealthHandler. breaker may be nil.
func NewHealthHandler(db Pinger, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{db: db, breaker: breaker}
}

// LiveResponse is the body of GET /health/live
type LiveResponse struct {
	Status string `json:"status"`
}

// HealthResponse is the body of GET /health/ready
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Metering string `json:"metering,omitempty"`
}

// Live GET /health/live
// Reports only that the process is serving. Dependencies are not checked.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, LiveResponse{Status: "alive"})
}

// Ready GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Database: "up"}
	if h.breaker != nil {
		resp.Metering = h.breaker.BreakerState().String()
	}

	status := http.StatusOK
	if err := h.db.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "down"
		status = http.StatusServiceUnavailable
	}

	// An open breaker rejects all metered traffic
	if h.breaker != nil && h.breaker.BreakerState() == gobreaker.StateOpen {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	pkghttp.WriteJSON(w, status, resp)
}
