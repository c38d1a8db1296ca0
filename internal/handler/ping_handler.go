package handler

import (
	"net/http"
	"net/url"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/internal/middleware"
	"clicktrack/internal/service"
	"clicktrack/pkg/logger"
)

// ServiceName identifies this API in descriptors and exports
const ServiceName = "clicktrack"

// ServiceInfo is the static part of the service descriptor
type ServiceInfo struct {
	Version          string
	SiteURL          string
	CursorTTLSeconds int
}

// PingHandler serves the authenticated service descriptor
type PingHandler struct {
	settings middleware.SettingsSource
	limits   service.QueryLimits
	info     ServiceInfo
	now      func() time.Time
	logger   *logger.Logger
}

// NewPingHandler creates a ping handler
func NewPingHandler(settings middleware.SettingsSource, limits service.QueryLimits, info ServiceInfo, log *logger.Logger) *PingHandler {
	return &PingHandler{settings: settings, limits: limits, info: info, now: time.Now, logger: log}
}

// PingResponse describes the deployment to API clients
type PingResponse struct {
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	TimeUTC    string         `json:"time_utc"`
	Site       string         `json:"site"`
	Auth       PingAuth       `json:"auth"`
	Limits     PingLimits     `json:"limits"`
	Pagination PingPagination `json:"pagination"`
}

type PingAuth struct {
	TokenScope string `json:"token_scope"`
	TokenLast4 string `json:"token_last4"`
}

type PingLimits struct {
	RatePerMinute   int `json:"rate_per_minute"`
	MaxPageSize     int `json:"max_page_size"`
	DefaultPageSize int `json:"default_page_size"`
	MaxLookbackDays int `json:"max_lookback_days"`
}

type PingPagination struct {
	Ordering         string `json:"ordering"`
	CursorSemantics  string `json:"cursor_semantics"`
	CursorTTLSeconds int    `json:"cursor_ttl_seconds"`
}

// Ping handles GET /ping
func (h *PingHandler) Ping(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	site := h.info.SiteURL
	if u, err := url.Parse(h.info.SiteURL); err == nil && u.Host != "" {
		site = u.Hostname()
	}

	writeJSON(w, http.StatusOK, PingResponse{
		Service: ServiceName,
		Version: h.info.Version,
		TimeUTC: h.now().UTC().Format(domain.TimestampLayout),
		Site:    site,
		Auth: PingAuth{
			TokenScope: "domain",
			TokenLast4: settings.TokenLast4(),
		},
		Limits: PingLimits{
			RatePerMinute:   ratePerMinute(settings),
			MaxPageSize:     h.limits.MaxPageSize,
			DefaultPageSize: h.limits.DefaultPageSize,
			MaxLookbackDays: h.limits.MaxLookbackDays,
		},
		Pagination: PingPagination{
			Ordering:         "clicked_at ASC, id ASC",
			CursorSemantics:  "forward_only",
			CursorTTLSeconds: h.info.CursorTTLSeconds,
		},
	}, h.logger)
}

// ratePerMinute normalizes the configured window to a per-minute figure
func ratePerMinute(s *domain.Settings) int {
	if s.RateWindowSeconds <= 0 {
		return s.RatePerWindow
	}
	return s.RatePerWindow * 60 / s.RateWindowSeconds
}
