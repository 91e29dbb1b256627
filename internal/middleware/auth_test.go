package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func whoami() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(IdentityFrom(r.Context())))
	})
}

func TestBearerAuth(t *testing.T) {
	h := BearerAuth(StaticTokens{"alice": "tok-a", "bob": "tok-b"})(whoami())

	tests := []struct {
		name   string
		method string
		path   string
		header string
		status int
		body   string
	}{
		{"valid bearer", http.MethodGet, "/me", "Bearer tok-a", http.StatusOK, "alice"},
		{"bare token", http.MethodGet, "/me", "tok-b", http.StatusOK, "bob"},
		{"missing", http.MethodGet, "/me", "", http.StatusUnauthorized, `{"error":"missing token"}` + "\n"},
		{"empty bearer", http.MethodGet, "/me", "Bearer   ", http.StatusUnauthorized, `{"error":"missing token"}` + "\n"},
		{"wrong", http.MethodGet, "/me", "Bearer nope", http.StatusUnauthorized, `{"error":"invalid token"}` + "\n"},
		{"public health", http.MethodGet, "/health", "", http.StatusOK, Anonymous},
		{"preflight", http.MethodOptions, "/projects", "", http.StatusOK, Anonymous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	h := BearerAuth(nil)(whoami())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Anonymous, rec.Body.String())
}

func TestIdentityFromEmptyContext(t *testing.T) {
	assert.Equal(t, "", IdentityFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
