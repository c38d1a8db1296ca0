package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/internal/middleware"
	"clicktrack/internal/service"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// AdminSettings is the settings surface the admin routes change
type AdminSettings interface {
	Current(ctx context.Context) (*domain.Settings, error)
	SetDestination(ctx context.Context, phone string) (string, error)
	RetainLegacy(ctx context.Context) (string, error)
}

// TokenRotator generates and stores a new domain token
type TokenRotator interface {
	Rotate(ctx context.Context) (string, time.Time, error)
}

// AdminHandler serves token management, destination and stats routes
type AdminHandler struct {
	settings AdminSettings
	tokens   TokenRotator
	stats    service.StatsReader
	info     ServiceInfo
	logger   *logger.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(settings AdminSettings, tokens TokenRotator, stats service.StatsReader, info ServiceInfo, log *logger.Logger) *AdminHandler {
	return &AdminHandler{settings: settings, tokens: tokens, stats: stats, info: info, logger: log}
}

// RotateResponse carries a freshly generated token
type RotateResponse struct {
	Token     string `json:"token"`
	RotatedAt string `json:"rotated_at"`
}

// ExportResponse is what an integrator needs to call the read API
type ExportResponse struct {
	BaseURL string        `json:"base_url"`
	Token   string        `json:"token"`
	Updated *string       `json:"updated"`
	Service ExportService `json:"service"`
}

type ExportService struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DestinationRequest is the body of PUT /admin/destination
type DestinationRequest struct {
	Phone string `json:"phone"`
}

// RotateToken handles POST /admin/token/rotate
func (h *AdminHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	token, rotatedAt, err := h.tokens.Rotate(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	h.auditLog(r).Info("Domain token rotated")
	writeJSON(w, http.StatusOK, RotateResponse{
		Token:     token,
		RotatedAt: rotatedAt.UTC().Format(domain.TimestampLayout),
	}, h.logger)
}

// RetainLegacy handles POST /admin/token/retain-legacy
func (h *AdminHandler) RetainLegacy(w http.ResponseWriter, r *http.Request) {
	token, err := h.settings.RetainLegacy(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	last4 := (&domain.Settings{TokenLegacy: token}).TokenLast4()
	h.auditLog(r).WithField("token_last4", last4).Info("Token retained as legacy")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"legacy_token_last4": last4,
	}, h.logger)
}

// ExportToken handles GET /admin/token/export
func (h *AdminHandler) ExportToken(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Current(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	token := settings.EffectiveToken()
	if token == "" {
		writeError(w, r, errors.NewValidationError(errors.CodeNoToken, "No token has been generated yet"), h.logger)
		return
	}

	var updated *string
	if settings.TokenRotatedAt != nil {
		s := settings.TokenRotatedAt.UTC().Format(domain.TimestampLayout)
		updated = &s
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, ExportResponse{
		BaseURL: h.info.SiteURL,
		Token:   token,
		Updated: updated,
		Service: ExportService{Name: ServiceName, Version: h.info.Version},
	}, h.logger)
}

// SetDestination handles PUT /admin/destination
func (h *AdminHandler) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req DestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errors.NewValidationError(errors.CodeInvalidPhone, "Body must be JSON with a phone field"), h.logger)
		return
	}

	phone, err := h.settings.SetDestination(r.Context(), req.Phone)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	h.auditLog(r).Info("Destination phone changed")
	writeJSON(w, http.StatusOK, map[string]string{"destination_phone": phone}, h.logger)
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	totals, err := h.stats.Totals(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, totals, h.logger)
}

func (h *AdminHandler) auditLog(r *http.Request) *logger.Logger {
	fields := map[string]interface{}{
		"path":       r.URL.Path,
		"request_id": middleware.GetRequestID(r.Context()),
	}
	if claims, ok := middleware.GetAdminClaims(r); ok {
		fields["admin_user_id"] = claims.UserID
	}
	return h.logger.WithFields(fields)
}
