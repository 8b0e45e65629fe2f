package middleware

import (
	"context"
	"net/http"
	"strings"

	"docshare/internal/auth/token"
	"docshare/pkg/logger"
	"docshare/pkg/respond"
)

type contextKey string

const UserIDKey contextKey = "userID"

// UserID returns the authenticated principal stored by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDKey).(string)
	return id, ok && id != ""
}

// WithUserID is used by tests and the websocket path to seed a principal.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// AuthMiddleware requires a valid "Authorization: Bearer" token.
func AuthMiddleware(tokens *token.Manager) func(http.Handler) http.Handler {
	return authenticate(tokens, false)
}

// WebSocketAuthMiddleware also accepts the token in the "token" query
// parameter, since browsers cannot set headers on a websocket upgrade.
func WebSocketAuthMiddleware(tokens *token.Manager) func(http.Handler) http.Handler {
	return authenticate(tokens, true)
}

func authenticate(tokens *token.Manager, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r.Header.Get("Authorization"))
			if tokenString == "" && allowQuery {
				tokenString = r.URL.Query().Get("token")
			}

			if tokenString == "" {
				respond.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			userID, err := tokens.Verify(tokenString)
			if err != nil {
				logger.Sugar.Debugw("Rejected token", "path", r.URL.Path, "error", err)
				respond.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(header string) string {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
