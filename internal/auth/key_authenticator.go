package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/metered-finance/internal/background"
	"github.com/BradenHooton/metered-finance/internal/models"
	pkgauth "github.com/BradenHooton/metered-finance/pkg/auth"
)

// KeyStore is the slice of the credential store the authenticator needs
type KeyStore interface {
	FindActiveByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string) error
}

// TaskSubmitter accepts fire-and-forget jobs
type TaskSubmitter interface {
	Submit(name string, fn background.JobFunc) bool
}

// dummyCredential is hashed once at startup; failed lookups verify against it so an
// unknown prefix costs the same as a wrong secret
const dummyCredential = "mf_0000000000000000_timingequalizationplaceholder00"

// KeyAuthenticator resolves an API key to a Client AuthContext
type KeyAuthenticator struct {
	store     KeyStore
	verifier  *pkgauth.SecretVerifier
	tasks     TaskSubmitter
	logger    *slog.Logger
	dummyHash string
}

// NewKeyAuthenticator creates a KeyAuthenticator
func NewKeyAuthenticator(store KeyStore, verifier *pkgauth.SecretVerifier, tasks TaskSubmitter, logger *slog.Logger) (*KeyAuthenticator, error) {
	dummyHash, err := verifier.Hash(dummyCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare key authenticator: %w", err)
	}

	return &KeyAuthenticator{
		store:     store,
		verifier:  verifier,
		tasks:     tasks,
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// Authenticate verifies credential and returns the Client context for its key.
//
// Every invalid credential (malformed, unknown prefix, wrong secret, inactive) fails
// with models.ErrInvalidAPIKey; the specific reason is only available through
// FailureReason for audit logging. A store failure fails closed with
// models.ErrInternalServer.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, credential string) (models.AuthContext, error) {
	if credential == "" {
		return models.AuthContext{}, failure(ReasonMissing, models.ErrMissingCredential)
	}

	prefix, err := pkgauth.ExtractPrefix(credential)
	if err != nil {
		a.verifier.Verify(credential, a.dummyHash)
		return models.AuthContext{}, failure(ReasonMalformed, models.ErrInvalidAPIKey)
	}

	key, err := a.store.FindActiveByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.verifier.Verify(credential, a.dummyHash)
			return models.AuthContext{}, failure(ReasonUnknownPrefix, models.ErrInvalidAPIKey)
		}
		a.logger.ErrorContext(ctx, "api key lookup failed", slog.Any("error", err))
		return models.AuthContext{}, failure(ReasonStoreError, fmt.Errorf("%w: key lookup failed", models.ErrInternalServer))
	}

	if !a.verifier.Verify(credential, key.SecretHash) {
		return models.AuthContext{}, failure(ReasonSecretMismatch, models.ErrInvalidAPIKey)
	}

	if !key.Active {
		return models.AuthContext{}, failure(ReasonInactive, models.ErrInvalidAPIKey)
	}

	a.touchLastUsed(key.KeyID)

	return models.ClientContext(key.KeyID, key.Scopes), nil
}

// touchLastUsed queues the last-used update; it never affects the auth outcome
func (a *KeyAuthenticator) touchLastUsed(keyID string) {
	if a.tasks == nil {
		return
	}
	a.tasks.Submit("touch_last_used", func(ctx context.Context) error {
		if err := a.store.TouchLastUsed(ctx, keyID); err != nil {
			return fmt.Errorf("touch last used for %s: %w", keyID, err)
		}
		return nil
	})
}
