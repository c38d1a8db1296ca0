package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"clicktrack/internal/domain"
	apperrors "clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// Token locations. The legacy header and query names are still accepted.
const (
	HeaderAuthToken       = "X-Auth-Token"
	HeaderLegacyAuthToken = "X-IW8-Token"
	QueryAuthToken        = "x_auth_token"
	QueryLegacyAuthToken  = "x_iw8_token"

	tokenBytes = 32
)

// SettingsProvider returns the current effective settings
type SettingsProvider interface {
	Current(ctx context.Context) (*domain.Settings, error)
}

// TokenStore persists a freshly rotated token
type TokenStore interface {
	SaveToken(ctx context.Context, token string, rotatedAt time.Time) error
}

// TokenService authenticates read API callers against the shared secret
type TokenService struct {
	settings SettingsProvider
	store    TokenStore
	sources  []entropySource
	now      func() time.Time
	logger   *logger.Logger
}

// NewTokenService creates a token service with the default entropy chain
func NewTokenService(settings SettingsProvider, store TokenStore, log *logger.Logger) *TokenService {
	return &TokenService{
		settings: settings,
		store:    store,
		sources:  defaultSources(),
		now:      time.Now,
		logger:   log,
	}
}

// ExtractToken reads the token header, falling back to the diagnostic query
// parameter. Returns "" when neither is present.
func ExtractToken(r *http.Request) string {
	for _, name := range []string{HeaderAuthToken, HeaderLegacyAuthToken} {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}

	q := r.URL.Query()
	for _, name := range []string{QueryAuthToken, QueryLegacyAuthToken} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the request token against the effective token
func (s *TokenService) Validate(ctx context.Context, r *http.Request) error {
	provided := ExtractToken(r)
	if provided == "" {
		return apperrors.NewAuthenticationError(apperrors.CodeMissingToken, "X-Auth-Token header is missing or empty")
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return apperrors.NewInternalError("Failed to load settings", err)
	}

	expected := strings.TrimSpace(settings.EffectiveToken())
	if expected == "" {
		return apperrors.NewUnavailableError(apperrors.CodeTokenNotConfigured, "No token is configured for this site")
	}

	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return apperrors.NewAuthenticationError(apperrors.CodeInvalidToken, "Invalid token")
	}
	return nil
}

// Rotate generates a new 64 hex character token and stores it as the new
// token. The previous token is not retained.
func (s *TokenService) Rotate(ctx context.Context) (string, time.Time, error) {
	token, source, err := generateToken(s.sources)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	rotatedAt := s.now().UTC().Truncate(time.Second)
	if err := s.store.SaveToken(ctx, token, rotatedAt); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to save token: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"entropy_source": source,
		"token_last4":    token[len(token)-4:],
	}).Info("Token rotated")
	return token, rotatedAt, nil
}

// entropySource is one tier of the token RNG chain
type entropySource struct {
	name   string
	reader func() (io.Reader, error)
}

func defaultSources() []entropySource {
	return []entropySource{
		{name: "crypto/rand", reader: func() (io.Reader, error) { return rand.Reader, nil }},
		{name: "/dev/urandom", reader: openURandom},
		{name: "chacha8", reader: seededChaCha8},
	}
}

// generateToken tries each source in order. A source must fill the whole
// buffer to be used.
func generateToken(sources []entropySource) (string, string, error) {
	buf := make([]byte, tokenBytes)
	var errs []error
	for _, src := range sources {
		r, err := src.reader()
		if err == nil {
			_, err = io.ReadFull(r, buf)
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", src.name, err))
			continue
		}
		return hex.EncodeToString(buf), src.name, nil
	}
	return "", "", errors.Join(errs...)
}

func openURandom() (io.Reader, error) {
	return os.Open("/dev/urandom")
}

// seededChaCha8 is the last resort. It is not a secure source.
func seededChaCha8() (io.Reader, error) {
	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(seed[8:16], uint64(os.Getpid()))
	return mrand.NewChaCha8(seed), nil
}
