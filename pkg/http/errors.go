package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Machine-readable codes carried on 429 responses
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeLoginDelay        = "LOGIN_DELAY"
)

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error      string       `json:"error"`                // Machine-readable error category
	Message    string       `json:"message"`              // Human-readable message
	Details    []string     `json:"details,omitempty"`    // Itemized reasons, e.g. violated password rules
	Errors     []FieldError `json:"errors,omitempty"`     // Field-level validation failures
	Code       string       `json:"code,omitempty"`       // Throttle code on 429
	RetryAfter *int         `json:"retryAfter,omitempty"` // Seconds until retry; always set on 429, even when 0
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with itemized details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message string, details []string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteValidationError writes a 400 carrying field-level validation failures
func WriteValidationError(w http.ResponseWriter, message string, fields []FieldError) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
		Errors:  fields,
	})
}

// WriteRateLimited writes a 429 with a throttle code and Retry-After
func WriteRateLimited(w http.ResponseWriter, code, message string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate_limit_exceeded",
		Message:    message,
		Code:       code,
		RetryAfter: &retryAfterSeconds,
	})
}

// Common error writers for consistency
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
