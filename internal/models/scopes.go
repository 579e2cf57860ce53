package models

import (
	"fmt"
	"strings"
)

// Scope is a named capability a credential may hold
type Scope string

// Scope constants define all valid scopes in the system
const (
	ScopeClient    Scope = "client"
	ScopeAdmin     Scope = "admin"
	ScopeReporting Scope = "reporting"
)

// AllValidScopes is the whitelist of all allowed scopes
var AllValidScopes = map[Scope]bool{
	ScopeClient:    true,
	ScopeAdmin:     true,
	ScopeReporting: true,
}

// String implements fmt.Stringer
func (s Scope) String() string {
	return string(s)
}

// IsValidScope checks if a scope exists in the whitelist
func IsValidScope(scope Scope) bool {
	return AllValidScopes[scope]
}

// ParseScope converts a stored or requested tag to a Scope
func ParseScope(raw string) (Scope, error) {
	scope := Scope(strings.TrimSpace(strings.ToLower(raw)))
	if !IsValidScope(scope) {
		return "", fmt.Errorf("%w: unknown scope %q", ErrBadRequest, raw)
	}
	return scope, nil
}

// ParseScopes converts stored tags to scopes, dropping unknown values
func ParseScopes(raw []string) []Scope {
	scopes := make([]Scope, 0, len(raw))
	for _, s := range raw {
		if scope, err := ParseScope(s); err == nil {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// ScopeStrings converts scopes to their stored representation
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// HasScope checks if a scope set contains a required scope
func HasScope(scopes []Scope, required Scope) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}

// ValidateScopes returns an error if a requested scope set is empty, duplicated or unknown
func ValidateScopes(scopes []Scope) error {
	if len(scopes) == 0 {
		return fmt.Errorf("%w: scopes cannot be empty", ErrBadRequest)
	}

	seen := make(map[Scope]bool, len(scopes))
	for _, scope := range scopes {
		if !IsValidScope(scope) {
			return fmt.Errorf("%w: unknown scope %q", ErrBadRequest, scope)
		}
		if seen[scope] {
			return fmt.Errorf("%w: duplicate scope %q", ErrBadRequest, scope)
		}
		seen[scope] = true
	}
	return nil
}
