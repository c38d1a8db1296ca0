package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"clicktrack/internal/service"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

const (
	// AdminIssuer is accepted when a token names an issuer
	AdminIssuer = "clicktrack"

	adminRatePerWindow     = 10
	adminRateWindowSeconds = 60
)

// AuditLogger handles audit logging for admin operations
type AuditLogger struct {
	log *logger.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(log *logger.Logger) *AuditLogger {
	return &AuditLogger{log: log.Named("admin_audit")}
}

// LogAccess logs an access attempt
func (al *AuditLogger) LogAccess(r *http.Request, status, details string) {
	al.log.WithFields(map[string]interface{}{
		"method":     r.Method,
		"path":       r.URL.Path,
		"client_ip":  getClientIP(r),
		"status":     status,
		"details":    details,
		"user_agent": r.Header.Get("User-Agent"),
		"request_id": GetRequestID(r.Context()),
	}).Info("Admin access")
}

// getClientIP extracts client IP for audit logging
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to remote address
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// AdminClaims represents JWT claims for admin users
type AdminClaims struct {
	UserID  string   `json:"user_id"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles"`
	IsAdmin bool     `json:"is_admin"`
	jwt.RegisteredClaims
}

// AdminMiddleware provides authentication and authorization for admin endpoints
type AdminMiddleware struct {
	jwtSecret   string
	allowedIPs  []string
	rateLimiter *service.RateLimiter
	auditLogger *AuditLogger
}

// NewAdminMiddleware creates a new admin middleware instance. An empty
// allowlist admits every address.
func NewAdminMiddleware(jwtSecret string, allowedIPs []string, log *logger.Logger) *AdminMiddleware {
	if jwtSecret == "" {
		log.Warn("ADMIN_JWT_SECRET is not set, admin routes will reject every request")
	}
	return &AdminMiddleware{
		jwtSecret:   jwtSecret,
		allowedIPs:  allowedIPs,
		rateLimiter: service.NewRateLimiter(service.NewMemoryCounterStore()),
		auditLogger: NewAuditLogger(log),
	}
}

// RequireAdmin is the main middleware function for admin routes
func (m *AdminMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r.Context())

		// Step 1: IP allowlist check
		if !m.isIPAllowed(r) {
			m.auditLogger.LogAccess(r, "BLOCKED", "IP not in allowlist")
			errors.WriteJSON(w, errors.NewAuthorizationError("Access denied"), requestID)
			return
		}

		// Step 2: Rate limiting
		clientIP := getClientIP(r)
		info, err := m.rateLimiter.Check(r.Context(), service.BucketKey("admin", clientIP), adminRatePerWindow, adminRateWindowSeconds)
		if err == nil && !info.Allowed {
			m.auditLogger.LogAccess(r, "RATE_LIMITED", "Too many requests")
			errors.WriteJSON(w, errors.NewRateLimitError(info.RetryAfterSeconds), requestID)
			return
		}

		// Step 3: JWT authentication and authorization
		claims, err := m.validateAdminToken(r)
		if err != nil {
			m.auditLogger.LogAccess(r, "AUTH_FAILED", err.Error())
			errors.WriteJSON(w, errors.NewAuthenticationError(errors.CodeUnauthorized, "Authentication failed"), requestID)
			return
		}

		// Step 4: Admin role check
		if !claims.IsAdmin && !hasAdminRole(claims.Roles) {
			m.auditLogger.LogAccess(r, "AUTHORIZATION_FAILED", "Insufficient privileges")
			errors.WriteJSON(w, errors.NewAuthorizationError("Insufficient privileges"), requestID)
			return
		}

		ctx := context.WithValue(r.Context(), AdminClaimsContextKey, claims)
		m.auditLogger.LogAccess(r, "AUTHORIZED", fmt.Sprintf("Admin: %s", claims.UserID))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isIPAllowed checks if the request IP is in the allowlist
func (m *AdminMiddleware) isIPAllowed(r *http.Request) bool {
	if len(m.allowedIPs) == 0 {
		return true
	}

	clientIP := getClientIP(r)
	if slices.Contains(m.allowedIPs, clientIP) {
		return true
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}

	for _, allowedIP := range m.allowedIPs {
		// Check for CIDR match
		if strings.Contains(allowedIP, "/") {
			_, network, err := net.ParseCIDR(allowedIP)
			if err == nil && network.Contains(ip) {
				return true
			}
		}
	}
	return false
}

// validateAdminToken validates the JWT token and extracts admin claims
func (m *AdminMiddleware) validateAdminToken(r *http.Request) (*AdminClaims, error) {
	if m.jwtSecret == "" {
		return nil, fmt.Errorf("admin secret not configured")
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("no authorization header")
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	token, err := jwt.ParseWithClaims(parts[1], &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid token: missing user_id claim")
	}
	if claims.Issuer != "" && claims.Issuer != AdminIssuer {
		return nil, fmt.Errorf("invalid token: invalid issuer")
	}
	return claims, nil
}

// hasAdminRole checks if the user has admin role
func hasAdminRole(roles []string) bool {
	return slices.Contains(roles, "admin") || slices.Contains(roles, "super_admin")
}

// GetAdminClaims retrieves admin claims from request context
func GetAdminClaims(r *http.Request) (*AdminClaims, bool) {
	claims, ok := r.Context().Value(AdminClaimsContextKey).(*AdminClaims)
	return claims, ok
}
