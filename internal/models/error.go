package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Access and admission errors
	ErrMissingCredential  = fmt.Errorf("%w: missing credential", ErrUnauthorized)
	ErrInvalidAPIKey      = fmt.Errorf("%w: invalid API key", ErrUnauthorized)
	ErrInvalidAdminKey    = fmt.Errorf("%w: invalid admin key", ErrUnauthorized)
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrAdminNotConfigured = fmt.Errorf("%w: admin credential not configured", ErrInternalServer)

	// ErrCounterAtLimit is returned by a guarded increment that found the counter already at its limit
	ErrCounterAtLimit = errors.New("usage counter at limit")
)

// ForbiddenError reports the single scope a caller was missing
type ForbiddenError struct {
	Scope Scope
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("missing required scope: %s", e.Scope)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// RateLimitError is returned when the per-minute window is exhausted
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: limit %d requests per minute", e.Limit)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// QuotaPeriod names the calendar period a quota applies to
type QuotaPeriod string

const (
	QuotaDaily   QuotaPeriod = "daily"
	QuotaMonthly QuotaPeriod = "monthly"
)

// QuotaError is returned when a daily or monthly quota is exhausted
type QuotaError struct {
	Period QuotaPeriod
	Limit  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded", e.Period)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}
