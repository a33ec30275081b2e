package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
)

const (
	// GuardianKey is the context key the guardian's wallet address is
	// stored under.
	GuardianKey ContextKey = "guardian_address"

	guardianRole = "guardian"
)

// GuardianAuth validates guardian bearer tokens. Guardians are the only
// principals allowed to change a wallet's policy; the token's subject names
// the wallet address the guardian controls.
type GuardianAuth struct {
	secret []byte
}

// NewGuardianAuth creates guardian authentication middleware with the
// shared HMAC secret.
func NewGuardianAuth(secret string) *GuardianAuth {
	return &GuardianAuth{secret: []byte(secret)}
}

// Authenticate requires a valid guardian JWT in the Authorization header.
func (m *GuardianAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, apperrors.Unauthorized("guardian bearer token required"))
			return
		}

		address, err := m.parseToken(parts[1])
		if err != nil {
			writeError(w, apperrors.Unauthorized(err.Error()))
			return
		}

		ctx := context.WithValue(r.Context(), GuardianKey, address)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseToken verifies the signature and role claim and returns the wallet
// address the guardian controls.
func (m *GuardianAuth) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	if role, _ := claims["role"].(string); role != guardianRole {
		return "", fmt.Errorf("token does not carry the guardian role")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token missing wallet subject")
	}
	return sub, nil
}

// GetGuardianAddress returns the wallet address of the authenticated
// guardian, or an empty string.
func GetGuardianAddress(ctx context.Context) string {
	address, _ := ctx.Value(GuardianKey).(string)
	return address
}
