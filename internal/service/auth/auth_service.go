package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"clicktrack/pkg/logger"
)

// SessionService resolves the signed-in user from an optional bearer token
type SessionService struct {
	secret []byte
	logger *logger.Logger
}

// NewSessionService creates a session service. An empty secret disables
// session identity and every request is anonymous.
func NewSessionService(secret string, log *logger.Logger) *SessionService {
	return &SessionService{secret: []byte(secret), logger: log}
}

// UserIDFromHeader parses an Authorization header value. Anything missing or
// invalid is anonymous (0).
func (s *SessionService) UserIDFromHeader(authorization string) int64 {
	if len(s.secret) == 0 {
		return 0
	}

	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || !isJWTToken(token) {
		return 0
	}

	uid, err := s.ValidateSessionToken(token)
	if err != nil {
		s.logger.WithError(err).Debug("Ignoring invalid session token")
		return 0
	}
	return uid
}

// ValidateSessionToken verifies an HS256 session token and returns its uid
func (s *SessionService) ValidateSessionToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid session token claims")
	}

	uid := getInt64Value(claims, "uid")
	if uid <= 0 {
		return 0, fmt.Errorf("session token has no user id")
	}
	return uid, nil
}

// isJWTToken reports whether token has the three dot-separated segments
func isJWTToken(token string) bool {
	return token != "" && strings.Count(token, ".") == 2
}

func getInt64Value(m map[string]interface{}, key string) int64 {
	if val, ok := m[key].(float64); ok {
		return int64(val)
	}
	return 0
}
