package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/ward-wallet/ward-wallet/internal/session"
	apperrors "github.com/ward-wallet/ward-wallet/pkg/errors"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

const (
	// HeaderSessionToken carries the opaque session token.
	HeaderSessionToken = "X-Session-Token"
	// HeaderWalletOrigin carries the origin the session was issued for.
	HeaderWalletOrigin = "X-Wallet-Origin"

	// SessionKey is the context key the resolved session is stored under.
	SessionKey ContextKey = "wallet_session"
)

// SessionValidator resolves a session token bound to an origin.
type SessionValidator interface {
	Validate(ctx context.Context, id, origin string) (*types.Session, error)
}

// SessionAuth authenticates requests via session token and origin headers.
// There is no anonymous mode: a request missing either header is rejected
// as malformed before any session lookup happens.
type SessionAuth struct {
	sessions SessionValidator
}

// NewSessionAuth creates session authentication middleware.
func NewSessionAuth(sessions SessionValidator) *SessionAuth {
	return &SessionAuth{sessions: sessions}
}

// Authenticate validates the session headers and stores the resolved
// session in the request context.
func (m *SessionAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderSessionToken)
		origin := r.Header.Get(HeaderWalletOrigin)

		if token == "" || origin == "" {
			writeError(w, apperrors.Malformed("X-Session-Token and X-Wallet-Origin headers are required"))
			return
		}

		sess, err := m.sessions.Validate(r.Context(), token, origin)
		if err != nil {
			writeError(w, sessionError(err))
			return
		}

		ctx := context.WithValue(r.Context(), SessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession returns the authenticated session from context, or nil.
func GetSession(ctx context.Context) *types.Session {
	sess, _ := ctx.Value(SessionKey).(*types.Session)
	return sess
}

// sessionError maps session store failures onto the unauthorized error,
// keeping the specific cause in the detail field.
func sessionError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, session.ErrExpired):
		return apperrors.Unauthorized("session expired")
	case errors.Is(err, session.ErrOriginMismatch):
		return apperrors.Unauthorized("session not valid for this origin")
	case errors.Is(err, session.ErrNotFound):
		return apperrors.Unauthorized("unknown session token")
	default:
		if appErr, ok := apperrors.IsAppError(err); ok {
			return appErr
		}
		return apperrors.Unauthorized(err.Error())
	}
}
