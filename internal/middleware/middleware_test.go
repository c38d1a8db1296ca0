package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicktrack/internal/domain"
	"clicktrack/internal/service"
	apperrors "clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, inbound, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

type fakeValidator struct{ err error }

func (f fakeValidator) Validate(context.Context, *http.Request) error { return f.err }

func TestTokenAuth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"valid", nil, http.StatusOK, ""},
		{"missing", apperrors.NewAuthenticationError(apperrors.CodeMissingToken, "Missing token"), http.StatusUnauthorized, apperrors.CodeMissingToken},
		{"not configured", apperrors.NewUnavailableError(apperrors.CodeTokenNotConfigured, "No token"), http.StatusServiceUnavailable, apperrors.CodeTokenNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequestID(TokenAuth(fakeValidator{err: tt.err}, logger.NewNop())(okHandler))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				resp := decodeError(t, rec)
				assert.Equal(t, tt.code, resp.Error.Code)
				assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.Error.RequestID)
			}
		})
	}
}

type fakeResolver map[string]int64

func (f fakeResolver) UserIDFromHeader(authorization string) int64 { return f[authorization] }

func TestSessionIdentity(t *testing.T) {
	var seen int64
	h := SessionIdentity(fakeResolver{"Bearer good": 42})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetSessionUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(42), seen)

	req.Header.Set("Authorization", "Bearer bad")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(0), seen)
}

func TestRequireHTTPS(t *testing.T) {
	h := RequireHTTPS(true)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.CodeInsecureTransport, decodeError(t, rec).Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RequireHTTPS(false)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type staticSettings struct {
	settings *domain.Settings
	err      error
}

func (s staticSettings) Current(context.Context) (*domain.Settings, error) { return s.settings, s.err }

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, int) (*domain.RateLimitInfo, error) {
	return nil, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	settings := staticSettings{settings: &domain.Settings{RatePerWindow: 2, RateWindowSeconds: 60}}
	h := RateLimit(service.NewRateLimiter(service.NewMemoryCounterStore()), settings, "/events", logger.NewNop())(okHandler)

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		req.Header.Set("X-Auth-Token", token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send("a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "1", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "60", rec.Header().Get(HeaderRateLimitReset))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	send("a")
	rec = send("a")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeTooManyRequests, resp.Error.Code)
	require.NotNil(t, resp.Error.RetryAfter)

	// another token has its own bucket
	assert.Equal(t, http.StatusOK, send("b").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	settings := staticSettings{settings: &domain.Settings{RatePerWindow: 1, RateWindowSeconds: 60}}

	rec := httptest.NewRecorder()
	RateLimit(failingLimiter{}, settings, "/events", logger.NewNop())(okHandler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))

	rec = httptest.NewRecorder()
	RateLimit(failingLimiter{}, staticSettings{err: errors.New("db down")}, "/events", logger.NewNop())(okHandler).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

const adminSecret = "admin-secret"

func adminToken(t *testing.T, claims AdminClaims, secret string) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminMiddleware(t *testing.T) {
	var seen *AdminClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetAdminClaims(r)
	})

	tests := []struct {
		name       string
		allowedIPs []string
		remoteAddr string
		token      string
		status     int
	}{
		{"admin flag", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, adminSecret), http.StatusOK},
		{"admin role", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", Roles: []string{"admin"}}, adminSecret), http.StatusOK},
		{"not admin", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", Roles: []string{"editor"}}, adminSecret), http.StatusForbidden},
		{"wrong secret", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, "other"), http.StatusUnauthorized},
		{"missing user id", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{IsAdmin: true}, adminSecret), http.StatusUnauthorized},
		{"foreign issuer", nil, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", IsAdmin: true, RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}}, adminSecret), http.StatusUnauthorized},
		{"no token", nil, "203.0.113.5:1234", "", http.StatusUnauthorized},
		{"ip allowed by cidr", []string{"10.0.0.0/8"}, "10.1.2.3:1234", adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, adminSecret), http.StatusOK},
		{"ip blocked", []string{"10.0.0.0/8", "127.0.0.1"}, "203.0.113.5:1234", adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, adminSecret), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			m := NewAdminMiddleware(adminSecret, tt.allowedIPs, logger.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/admin/token/rotate", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			m.RequireAdmin(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "1", seen.UserID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestAdminMiddleware_RateLimited(t *testing.T) {
	m := NewAdminMiddleware(adminSecret, nil, logger.NewNop())
	token := adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, adminSecret)

	var last *httptest.ResponseRecorder
	for i := 0; i <= adminRatePerWindow; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
		last = httptest.NewRecorder()
		m.RequireAdmin(okHandler).ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestAdminMiddleware_NoSecret(t *testing.T) {
	m := NewAdminMiddleware("", nil, logger.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, AdminClaims{UserID: "1", IsAdmin: true}, "x"))
	rec := httptest.NewRecorder()
	m.RequireAdmin(okHandler).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
