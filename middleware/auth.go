// Package middleware holds the HTTP middleware chain. Each middleware is a
// func(next http.Handler) http.Handler that either calls next or answers
// the request itself:
//
//	AuthMiddleware → ServerPolicyMiddleware → handler
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/akinalp/corkboard/handlers"
	"github.com/akinalp/corkboard/models"
	"github.com/akinalp/corkboard/pkg"
)

// TokenValidator is the slice of services.TokenService needed here.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// UserSyncer upserts the caller's user row from the token claims.
type UserSyncer interface {
	Sync(ctx context.Context, claims *models.TokenClaims) (*models.User, error)
}

// AuthMiddleware validates the bearer token.
type AuthMiddleware struct {
	tokens TokenValidator
	users  UserSyncer
	log    *zap.Logger
}

// NewAuthMiddleware is the constructor.
func NewAuthMiddleware(tokens TokenValidator, users UserSyncer, log *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, log: log}
}

// Require rejects requests without a valid "Authorization: Bearer <token>"
// header with 401 and stores the synced *models.User in the context.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.tokens.ValidateAccessToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			pkg.Error(w, err)
			return
		}

		user, err := m.users.Sync(r.Context(), claims)
		if err != nil {
			m.log.Error("failed to sync user", zap.String("user_id", claims.UserID), zap.Error(err))
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
