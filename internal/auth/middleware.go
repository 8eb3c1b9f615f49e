package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey int

const accountIDKey contextKey = iota

// RequireAccessToken parses the Bearer access token and stores the account id
// in the request context. Used for account-scoped endpoints only; the auth
// flows themselves carry their own credentials.
func RequireAccessToken(issuer *TokenIssuer, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(header[len("bearer "):])
			accountID, err := issuer.ParseAccessToken(raw)
			if err != nil {
				logger.Debugw("access token rejected", "err", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext returns the account id placed by RequireAccessToken.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey).(int64)
	return id, ok
}
