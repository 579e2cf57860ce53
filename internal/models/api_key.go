package models

import (
	"time"
)

// Default policy limits applied when a key's record cannot be found
const (
	DefaultRateLimitPerMinute = 60
	DefaultDailyQuota         = 10_000
	DefaultMonthlyQuota       = 300_000
)

// APIKey is the stored identity and policy for one client credential
type APIKey struct {
	KeyID              string     `json:"key_id"`
	Prefix             string     `json:"prefix"`
	Name               string     `json:"name"`
	SecretHash         string     `json:"-"` // Never exposed
	Scopes             []Scope    `json:"scopes"`
	Active             bool       `json:"active"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute"`
	DailyQuota         int        `json:"daily_quota"`
	MonthlyQuota       int        `json:"monthly_quota"`
	CreatedAt          time.Time  `json:"created_at"`
	LastUsedAt         *time.Time `json:"last_used_at,omitempty"`
}

// GeneratedAPIKey is returned once when a key is created (includes plaintext)
type GeneratedAPIKey struct {
	PlainKey string  `json:"api_key"` // Shown ONLY once at creation
	APIKey   *APIKey `json:"key"`
}

// Limits returns the key's policy limits
func (k *APIKey) Limits() QuotaLimits {
	return QuotaLimits{
		RateLimitPerMinute: k.RateLimitPerMinute,
		DailyQuota:         k.DailyQuota,
		MonthlyQuota:       k.MonthlyQuota,
	}
}

// HasScope returns true if the key holds the specified scope
func (k *APIKey) HasScope(scope Scope) bool {
	return HasScope(k.Scopes, scope)
}

// QuotaLimits are the flat per-key admission limits
type QuotaLimits struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	DailyQuota         int `json:"daily_quota"`
	MonthlyQuota       int `json:"monthly_quota"`
}

// DefaultQuotaLimits returns the limits used when a key's policy is missing
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		DailyQuota:         DefaultDailyQuota,
		MonthlyQuota:       DefaultMonthlyQuota,
	}
}

// Valid reports whether every limit is a positive integer
func (l QuotaLimits) Valid() bool {
	return l.RateLimitPerMinute > 0 && l.DailyQuota > 0 && l.MonthlyQuota > 0
}

// APIKeyUpdate is a partial administrative update; nil fields are left unchanged
type APIKeyUpdate struct {
	Active             *bool
	Scopes             []Scope
	RateLimitPerMinute *int
	DailyQuota         *int
	MonthlyQuota       *int
}

// IsEmpty reports whether the update changes nothing
func (u APIKeyUpdate) IsEmpty() bool {
	return u.Active == nil && u.Scopes == nil &&
		u.RateLimitPerMinute == nil && u.DailyQuota == nil && u.MonthlyQuota == nil
}
