package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application-level error with HTTP status code
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeInvalidSeed         = "invalid_seed"
	ErrCodeDerivationError     = "derivation_error"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodePolicyRejected      = "policy_rejected"
	ErrCodeUpstreamUnavailable = "upstream_unavailable"
	ErrCodeMalformed           = "malformed"
	ErrCodeMethodNotFound      = "method_not_found"
	ErrCodeNotFound            = "not_found"
	ErrCodeForbidden           = "forbidden"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternalError       = "internal_error"
	ErrCodeChainNotSupported   = "chain_not_supported"
)

// Predefined errors
var (
	ErrUnauthorized = &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Session missing, expired, or not valid for this origin",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidSeed = &AppError{
		Code:       ErrCodeInvalidSeed,
		Message:    "Seed phrase is empty or malformed",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       ErrCodeNotFound,
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInternalError = &AppError{
		Code:       ErrCodeInternalError,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Detail:     detail,
		StatusCode: statusCode,
	}
}

// Malformed creates a bad-input error. Malformed requests are never retried.
func Malformed(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeMalformed,
		Message:    "Invalid request",
		Detail:     detail,
		StatusCode: http.StatusBadRequest,
	}
}

// PolicyRejected creates a business-rule denial. The reason is surfaced to
// the caller so the UI can distinguish "not allowed" from "not logged in".
func PolicyRejected(reason string) *AppError {
	return &AppError{
		Code:       ErrCodePolicyRejected,
		Message:    "Transaction rejected by policy",
		Detail:     reason,
		StatusCode: http.StatusForbidden,
	}
}

// Unauthorized creates a session-layer denial with a specific cause.
func Unauthorized(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    "Session missing, expired, or not valid for this origin",
		Detail:     detail,
		StatusCode: http.StatusUnauthorized,
	}
}

// UpstreamUnavailable wraps a failure of the chain endpoint or backing store
// that persisted through bounded retries.
func UpstreamUnavailable(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeUpstreamUnavailable,
		Message:    "Upstream service did not respond",
		Detail:     detail,
		StatusCode: http.StatusBadGateway,
	}
}

// MethodNotFound creates an error for an unsupported provider RPC method.
func MethodNotFound(method string) *AppError {
	return &AppError{
		Code:       ErrCodeMethodNotFound,
		Message:    "Unsupported RPC method",
		Detail:     "method: " + method,
		StatusCode: http.StatusBadRequest,
	}
}

// DerivationError wraps an internal key-derivation fault. Derivation fails
// closed: the wallet is treated as uninitialized, never given a random key.
func DerivationError(detail string) *AppError {
	return &AppError{
		Code:       ErrCodeDerivationError,
		Message:    "Key derivation failed",
		Detail:     detail,
		StatusCode: http.StatusInternalServerError,
	}
}

// ChainNotSupported creates an error for an unknown chain tag.
func ChainNotSupported(chain string) *AppError {
	return &AppError{
		Code:       ErrCodeChainNotSupported,
		Message:    "Chain not supported",
		Detail:     "chain: " + chain,
		StatusCode: http.StatusBadRequest,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
