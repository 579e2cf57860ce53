package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details any    `json:"details,omitempty"` // Optional structured context
}

// RateLimitDetails is attached to rate_limit_exceeded and ip_rate_limited responses
type RateLimitDetails struct {
	Limit      int    `json:"limit"`
	RetryAfter string `json:"retry_after"`
}

// QuotaDetails is attached to quota_exceeded responses
type QuotaDetails struct {
	Period string `json:"period"`
	Limit  int    `json:"limit"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON success response
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

// WriteRateLimited writes a 429 carrying the per-key limit and a Retry-After hint
func WriteRateLimited(w http.ResponseWriter, message string, limit int, retryAfter time.Duration) {
	writeThrottled(w, "rate_limit_exceeded", message, limit, retryAfter)
}

// WriteIPRateLimited writes a 429 for the per-address throttle that runs before authentication
func WriteIPRateLimited(w http.ResponseWriter, message string, limit int, retryAfter time.Duration) {
	writeThrottled(w, "ip_rate_limited", message, limit, retryAfter)
}

func writeThrottled(w http.ResponseWriter, code, message string, limit int, retryAfter time.Duration) {
	seconds := strconv.Itoa(int(retryAfter.Seconds()))
	w.Header().Set("Retry-After", seconds)
	WriteErrorWithDetails(w, http.StatusTooManyRequests, code, message, RateLimitDetails{
		Limit:      limit,
		RetryAfter: seconds + "s",
	})
}

// WriteQuotaExceeded writes a 429 naming the exhausted quota period
func WriteQuotaExceeded(w http.ResponseWriter, message, period string, limit int) {
	WriteErrorWithDetails(w, http.StatusTooManyRequests, "quota_exceeded", message, QuotaDetails{
		Period: period,
		Limit:  limit,
	})
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteServiceUnavailable writes a 503, used by health checks
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}
