package auth

import "errors"

// Failure reasons recorded in the audit log. They never reach the caller.
const (
	ReasonMissing        = "missing_credential"
	ReasonMalformed      = "malformed_credential"
	ReasonUnknownPrefix  = "unknown_prefix"
	ReasonSecretMismatch = "secret_mismatch"
	ReasonInactive       = "inactive_key"
	ReasonStoreError     = "store_error"
	ReasonNotConfigured  = "admin_not_configured"
)

// Error carries the internal reason for an authentication failure. Err is one of the
// public sentinels, so callers that match on errors.Is see the same shape for every
// invalid credential.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failure(reason string, err error) error {
	return &Error{Reason: reason, Err: err}
}

// FailureReason returns the audit reason for an authentication error, or "" if none
func FailureReason(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ""
}
