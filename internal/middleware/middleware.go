// Package middleware provides the HTTP middleware chain: request IDs, body
// limits, rate limiting, session auth, and guardian auth.
package middleware

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
)

// ContextKey is a type for context keys.
type ContextKey string

// writeError renders an AppError as JSON with its HTTP status.
func writeError(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": appErr})
}
