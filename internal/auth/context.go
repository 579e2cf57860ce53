package auth

import (
	"context"
	"net/http"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// AuthContextKey is the key for storing the resolved AuthContext in a request context
	AuthContextKey contextKey = "auth_context"
)

// Credential headers
const (
	APIKeyHeader   = "X-Api-Key"
	AdminKeyHeader = "X-Admin-Key"
)

// WithAuthContext returns a copy of ctx carrying ac
func WithAuthContext(ctx context.Context, ac models.AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// FromContext extracts the AuthContext attached by the metering pipeline
func FromContext(ctx context.Context) (models.AuthContext, bool) {
	ac, ok := ctx.Value(AuthContextKey).(models.AuthContext)
	return ac, ok
}

// GetAuthFromRequest extracts the AuthContext from request context
func GetAuthFromRequest(r *http.Request) (models.AuthContext, bool) {
	return FromContext(r.Context())
}
