package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/BradenHooton/metered-finance/internal/models"
)

// AdminAuthenticator checks the shared admin credential. The expected value is
// injected at construction; there is no store lookup.
type AdminAuthenticator struct {
	expected   [sha256.Size]byte
	configured bool
}

// NewAdminAuthenticator creates an AdminAuthenticator for expected. An empty value
// yields an authenticator that rejects every request with an internal error.
func NewAdminAuthenticator(expected string) *AdminAuthenticator {
	if expected == "" {
		return &AdminAuthenticator{}
	}
	return &AdminAuthenticator{
		expected:   sha256.Sum256([]byte(expected)),
		configured: true,
	}
}

// Authenticate compares presented to the expected credential in constant time.
// Both sides are hashed first so the comparison length never depends on the input.
func (a *AdminAuthenticator) Authenticate(presented string) (models.AuthContext, error) {
	if !a.configured {
		return models.AuthContext{}, failure(ReasonNotConfigured, models.ErrAdminNotConfigured)
	}
	if presented == "" {
		return models.AuthContext{}, failure(ReasonMissing, models.ErrMissingCredential)
	}

	got := sha256.Sum256([]byte(presented))
	if subtle.ConstantTimeCompare(got[:], a.expected[:]) != 1 {
		return models.AuthContext{}, failure(ReasonSecretMismatch, models.ErrInvalidAdminKey)
	}

	return models.AdminContext(), nil
}
