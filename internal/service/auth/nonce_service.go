package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Nonce actions. click_nonce is what older page scripts request.
const (
	ActionClick       = "click"
	ActionClickLegacy = "click_nonce"
)

// ErrBadNonce covers every way a nonce can fail verification
var ErrBadNonce = errors.New("bad_nonce")

// NonceClaims binds a nonce to a browser session and an action
type NonceClaims struct {
	SessionID string `json:"sid"`
	Action    string `json:"act"`
	jwt.RegisteredClaims
}

// NonceService issues and verifies short-lived anti-forgery tokens
type NonceService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewNonceService creates a nonce service signing with secret
func NewNonceService(secret string, ttl time.Duration) *NonceService {
	return &NonceService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a nonce for sessionID and its expiry
func (s *NonceService) Issue(sessionID string) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)

	claims := NonceClaims{
		SessionID: sessionID,
		Action:    ActionClick,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign nonce: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify accepts a nonce issued for sessionID under either action name
func (s *NonceService) Verify(nonce, sessionID string) error {
	if nonce == "" || sessionID == "" {
		return ErrBadNonce
	}

	claims := &NonceClaims{}
	token, err := jwt.ParseWithClaims(nonce, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return ErrBadNonce
	}

	if claims.SessionID != sessionID {
		return ErrBadNonce
	}
	if claims.Action != ActionClick && claims.Action != ActionClickLegacy {
		return ErrBadNonce
	}
	return nil
}
