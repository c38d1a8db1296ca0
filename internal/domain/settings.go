package domain

import "time"

// Settings keys persisted in the settings store
const (
	SettingDestinationPhone  = "destination_phone"
	SettingTokenNew          = "token_new"
	SettingTokenLegacy       = "token_legacy"
	SettingTokenRotatedAt    = "token_rotated_at"
	SettingRatePerWindow     = "rate_per_window"
	SettingRateWindowSeconds = "rate_window_seconds"
)

// Settings is the deployment configuration passed into each component.
// Stored values override configuration defaults.
type Settings struct {
	DestinationPhone  string     `json:"destination_phone"`
	TokenNew          string     `json:"token_new"`
	TokenLegacy       string     `json:"token_legacy"`
	TokenRotatedAt    *time.Time `json:"token_rotated_at,omitempty"`
	RatePerWindow     int        `json:"rate_per_window"`
	RateWindowSeconds int        `json:"rate_window_seconds"`
}

// EffectiveToken prefers the new token, then the legacy one
func (s *Settings) EffectiveToken() string {
	if s.TokenNew != "" {
		return s.TokenNew
	}
	return s.TokenLegacy
}

// TokenLast4 is safe to expose in diagnostics
func (s *Settings) TokenLast4() string {
	token := s.EffectiveToken()
	if len(token) <= 4 {
		return token
	}
	return token[len(token)-4:]
}
