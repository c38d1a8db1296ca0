package handler

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"clicktrack/internal/domain"
	"clicktrack/internal/middleware"
	"clicktrack/internal/service"
	"clicktrack/pkg/logger"
)

const (
	// SessionCookie binds anti-forgery nonces to a browser
	SessionCookie = "ct_session"
	// NonceHeader is accepted in place of a nonce form field
	NonceHeader = "X-Click-Nonce"

	sessionCookieMaxAge = 30 * 24 * 60 * 60
	maxIngestBody       = 1 << 20
)

// nonceFields are the accepted nonce parameter names, in priority order
var nonceFields = []string{"_ajax_nonce", "nonce"}

// NonceIssuer issues session-bound anti-forgery nonces
type NonceIssuer interface {
	Issue(sessionID string) (string, time.Time, error)
}

// EventsHandler serves the read and write click APIs
type EventsHandler struct {
	query          service.ClickQuerier
	ingest         service.ClickIngester
	nonces         NonceIssuer
	serviceVersion string
	secureCookies  bool
	logger         *logger.Logger
}

// NewEventsHandler creates an events handler. secureCookies marks the
// session cookie Secure.
func NewEventsHandler(query service.ClickQuerier, ingest service.ClickIngester, nonces NonceIssuer, serviceVersion string, secureCookies bool, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		query:          query,
		ingest:         ingest,
		nonces:         nonces,
		serviceVersion: serviceVersion,
		secureCookies:  secureCookies,
		logger:         log,
	}
}

// NonceResponse is returned by GET /events/nonce
type NonceResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresAt string `json:"expires_at"`
}

// List handles GET /events
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// ListLegacy handles GET /clicks, which drops unknown field names instead of
// rejecting them
func (h *EventsHandler) ListLegacy(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *EventsHandler) list(w http.ResponseWriter, r *http.Request, lenient bool) {
	q := r.URL.Query()
	params := service.QueryParams{
		Since:         q.Get("since"),
		Until:         q.Get("until"),
		Cursor:        q.Get("cursor"),
		NextCursor:    q.Get("next_cursor"),
		Limit:         q.Get("limit"),
		Fields:        q.Get("fields"),
		LenientFields: lenient,
	}

	w.Header().Set("X-Cursor-Semantics", "forward_only")
	w.Header().Set("X-Service-Version", h.serviceVersion)

	page, err := h.query.List(r.Context(), params)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, page, h.logger)
}

// Record handles POST /events
func (h *EventsHandler) Record(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBody)

	req := &domain.IngestRequest{
		Referer:       r.Referer(),
		UserAgent:     r.UserAgent(),
		SessionUserID: middleware.GetSessionUserID(r.Context()),
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		req.SessionID = cookie.Value
	}

	if isJSON(r) {
		req.Payload = domain.ClickPayload{Kind: domain.PayloadJSON, Blob: h.decodeBlob(r.Body)}
		req.Nonce = nonceFromBlob(req.Payload.Blob)
	} else {
		req.Payload = h.parseForm(r)
		req.Nonce = firstNonEmpty(req.Payload.Fields, nonceFields)
	}
	if req.Nonce == "" {
		req.Nonce = strings.TrimSpace(r.Header.Get(NonceHeader))
	}

	result, err := h.ingest.Record(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	switch result.Error {
	case domain.IngestErrDBInsert, domain.IngestErrSettings:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result, h.logger)
}

// Nonce handles GET /events/nonce, starting a session when the browser has
// none
func (h *EventsHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			sessionID = cookie.Value
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   sessionCookieMaxAge,
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	nonce, expiresAt, err := h.nonces.Issue(sessionID)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, NonceResponse{
		Nonce:     nonce,
		ExpiresAt: expiresAt.UTC().Format(domain.TimestampLayout),
	}, h.logger)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// parseForm collects discrete fields and the optional data blob. Parse
// failures leave the payload empty, which ingestion reports as missing_url.
func (h *EventsHandler) parseForm(r *http.Request) domain.ClickPayload {
	payload := domain.ClickPayload{Kind: domain.PayloadForm, Fields: map[string]string{}}

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxIngestBody)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		h.logger.WithError(err).Debug("Failed to parse click form")
		return payload
	}

	for key, values := range r.PostForm {
		if len(values) > 0 {
			payload.Fields[key] = values[0]
		}
	}

	if data, ok := payload.Fields["data"]; ok {
		payload.Blob = h.decodeBlob(strings.NewReader(data))
		delete(payload.Fields, "data")
	}
	return payload
}

// decodeBlob reads a JSON object. Anything else yields an empty blob.
func (h *EventsHandler) decodeBlob(body io.Reader) map[string]interface{} {
	var blob map[string]interface{}
	if err := json.NewDecoder(body).Decode(&blob); err != nil {
		h.logger.WithError(err).Debug("Ignoring malformed click data")
		return nil
	}
	return blob
}

func nonceFromBlob(blob map[string]interface{}) string {
	for _, name := range nonceFields {
		if v, ok := blob[name].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmpty(fields map[string]string, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(fields[name]); v != "" {
			return v
		}
	}
	return ""
}
