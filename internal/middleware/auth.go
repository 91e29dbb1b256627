package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const IdentityKey contextKey = "identity"

// Anonymous is the identity used when authentication is disabled.
const Anonymous = "anonymous"

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier maps a bearer token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// StaticTokens verifies tokens against a fixed uid → token table.
type StaticTokens map[string]string

func (t StaticTokens) Verify(_ context.Context, token string) (string, error) {
	// constant-time comparison to prevent timing attacks
	uid := ""
	for u, key := range t {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			uid = u
		}
	}
	if uid == "" {
		return "", ErrInvalidToken
	}
	return uid, nil
}

// publicPaths skip authentication.
var publicPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// BearerAuth validates the Authorization header and stores the caller's uid
// in the request context. A nil verifier disables authentication and every
// caller becomes Anonymous.
func BearerAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Anonymous)))
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			// Support both "Bearer <key>" and "<key>" formats
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			uid, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), uid)))
		})
	}
}

func WithIdentity(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, IdentityKey, uid)
}

// IdentityFrom extracts the caller uid from context.
func IdentityFrom(ctx context.Context) string {
	if uid, ok := ctx.Value(IdentityKey).(string); ok {
		return uid
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
