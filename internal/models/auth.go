package models

import "fmt"

// AuthKind tags the variant held by an AuthContext
type AuthKind int

const (
	// AuthKindClient is a request authenticated with an API key
	AuthKindClient AuthKind = iota + 1
	// AuthKindAdmin is a request authenticated with the shared admin credential
	AuthKindAdmin
)

// String returns the tier name used in logs and metrics
func (k AuthKind) String() string {
	switch k {
	case AuthKindClient:
		return "client"
	case AuthKindAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// AuthContext is the resolved identity attached to a request.
// It is a two-case variant: Client{KeyID, Scopes} or Admin. Consumers switch on Kind
// and must handle both cases; the zero value is not a valid context.
type AuthContext struct {
	Kind   AuthKind
	KeyID  string
	Scopes []Scope
}

// ClientContext builds the Client variant
func ClientContext(keyID string, scopes []Scope) AuthContext {
	return AuthContext{Kind: AuthKindClient, KeyID: keyID, Scopes: scopes}
}

// AdminContext builds the Admin variant
func AdminContext() AuthContext {
	return AuthContext{Kind: AuthKindAdmin}
}

// HasScope reports whether the context satisfies a scope. Admin holds every scope.
func (c AuthContext) HasScope(scope Scope) bool {
	switch c.Kind {
	case AuthKindAdmin:
		return true
	case AuthKindClient:
		return HasScope(c.Scopes, scope)
	default:
		panic(fmt.Sprintf("models: unhandled auth kind %d", c.Kind))
	}
}

// IsAdmin reports whether this is the Admin variant
func (c AuthContext) IsAdmin() bool {
	return c.Kind == AuthKindAdmin
}

// ClientKeyID returns the key id for the Client variant; ok is false for Admin
func (c AuthContext) ClientKeyID() (keyID string, ok bool) {
	switch c.Kind {
	case AuthKindClient:
		return c.KeyID, true
	case AuthKindAdmin:
		return "", false
	default:
		panic(fmt.Sprintf("models: unhandled auth kind %d", c.Kind))
	}
}
