package logger

import (
	"log/slog"
	"strings"
)

// RedactedAttr returns value under key, or "[REDACTED]" when sensitive is set
func RedactedAttr(key, value string, sensitive bool) slog.Attr {
	if sensitive {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"password":  true,
		"token":     true,
		"secret":    true,
		"api_key":   true,
		"apikey":    true,
		"admin_key": true,
		"adminkey":  true,
		"apitoken":  true,
		"auth":      true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
