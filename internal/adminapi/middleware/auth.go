// Package middleware holds the Admin API's HTTP-layer cross-cutting
// concerns, generalizing the teacher's internal/infra/auth middleware to
// the broker's SessionIssuer instead of its console TokenValidator.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/credential"
)

type ctxKey string

const (
	userIDKey ctxKey = "admin_user_id"
	roleKey   ctxKey = "admin_role"
)

// RequireSession gates a route group behind a valid operator session
// token, mirroring the teacher's auth.NewMiddleware shape: missing or
// invalid bearer tokens are rejected before the wrapped handler ever runs,
// and the verified identity is threaded onto the request context for
// downstream handlers.
func RequireSession(issuer *credential.SessionIssuer, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)

			userID, role, err := issuer.VerifySession(r.Context(), token)
			if err != nil {
				logger.Warn("admin session rejected", zap.Error(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, roleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the verified operator identity stashed by RequireSession.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// Role returns the verified operator role stashed by RequireSession.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}
