package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/gameauth/internal/api/apierr"
	"github.com/mcoot/gameauth/internal/model"
	"github.com/mcoot/gameauth/internal/services/auth"
	"github.com/mcoot/gameauth/internal/services/token"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Authenticator resolves bearer tokens to accounts
type Authenticator interface {
	Authenticate(ctx context.Context, tokenStr string) (*auth.Identity, error)
}

// Auth creates middleware that requires a valid bearer token for a live,
// active account. Failures never reach the wrapped handler.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractToken(r)
			if tokenStr == "" {
				apierr.WriteError(w, token.ErrTokenMissing)
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), tokenStr)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth resolves a bearer token if present but always proceeds
func OptionalAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenStr := extractToken(r); tokenStr != "" {
				if identity, err := authenticator.Authenticate(r.Context(), tokenStr); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the Authorization header; the scheme is case-insensitive
func extractToken(r *http.Request) string {
	scheme, tokenStr, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tokenStr)
}

// WithIdentity stores an identity in the context
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// GetIdentity returns the authenticated identity from the request context
func GetIdentity(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityContextKey).(*auth.Identity)
	return identity
}

// GetAccount returns the authenticated account, or nil
func GetAccount(ctx context.Context) *model.Account {
	if identity := GetIdentity(ctx); identity != nil {
		return identity.Account
	}
	return nil
}

// MustGetIdentity returns the authenticated identity or panics
func MustGetIdentity(ctx context.Context) *auth.Identity {
	identity := GetIdentity(ctx)
	if identity == nil {
		panic("no identity in context - auth middleware not applied?")
	}
	return identity
}
