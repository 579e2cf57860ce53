package auth

import "github.com/BradenHooton/metered-finance/internal/models"

// RequireScope returns a *models.ForbiddenError naming scope when ac does not hold it.
// Admin satisfies every scope.
func RequireScope(ac models.AuthContext, scope models.Scope) error {
	if ac.HasScope(scope) {
		return nil
	}
	return &models.ForbiddenError{Scope: scope}
}
