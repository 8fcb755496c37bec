package middleware

import (
	"context"
	"net/http"
	"strings"

	"subledger/pkg/hash"
	"subledger/pkg/jwt"
)

type ctxKey string

// AccountKey holds the authenticated account identity.
const AccountKey ctxKey = "account"

// JWTAuth requires a bearer token and stores its subject under AccountKey.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
				return
			}

			account, err := jwt.ParseToken(secret, raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), AccountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFrom returns the identity JWTAuth stored, if any.
func AccountFrom(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(AccountKey).(string)
	return account, ok && account != ""
}

// BasicAuth guards a route with a username and a bcrypt password hash.
func BasicAuth(username, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeCompare(user, username) || !hash.CheckPassword(passwordHash, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	result := 0
	for i := range a {
		result |= int(a[i] ^ b[i])
	}
	return result == 0
}
