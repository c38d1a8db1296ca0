package service

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"clicktrack/internal/domain"
	"clicktrack/internal/matcher"
	"clicktrack/internal/repository"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/utils"
)

// Column limits of the click table
const (
	MaxURLLength         = 255
	MaxUserAgentLength   = 255
	MaxElementTagLength  = 20
	MaxElementTextLength = 255
	MaxGeoCityLength     = 64
	MaxGeoRegionLength   = 16

	DefaultElementTag = "A"
)

// Payload field names
const (
	PayloadFieldURL         = "url"
	PayloadFieldPageURL     = "page_url"
	PayloadFieldElementTag  = "element_tag"
	PayloadFieldElementText = "element_text"
	PayloadFieldUserID      = "user_id"
	PayloadFieldGeoCity     = "geo_city"
	PayloadFieldGeoRegion   = "geo_region"
)

var payloadFields = []string{
	PayloadFieldURL,
	PayloadFieldPageURL,
	PayloadFieldElementTag,
	PayloadFieldElementText,
	PayloadFieldUserID,
	PayloadFieldGeoCity,
	PayloadFieldGeoRegion,
}

// NonceVerifier checks an anti-forgery token against the session it was
// issued for
type NonceVerifier interface {
	Verify(nonce, sessionID string) error
}

// clickInput is the canonical payload after merging and sanitizing
type clickInput struct {
	URL         string
	PageURL     string
	ElementTag  string
	ElementText string
	UserID      int64
	GeoCity     string
	GeoRegion   string
}

// IngestService validates inbound clicks and persists the ones that target
// the configured destination
type IngestService struct {
	repo     repository.ClickRepository
	settings *SettingsService
	nonces   NonceVerifier
	siteURL  string
	policy   *bluemonday.Policy
	now      func() time.Time
	logger   *logger.Logger
}

// NewIngestService creates an ingestion service. siteURL is the page_url of
// last resort.
func NewIngestService(repo repository.ClickRepository, settings *SettingsService, nonces NonceVerifier, siteURL string, log *logger.Logger) *IngestService {
	return &IngestService{
		repo:     repo,
		settings: settings,
		nonces:   nonces,
		siteURL:  strings.TrimRight(siteURL, "/"),
		policy:   bluemonday.StrictPolicy(),
		now:      time.Now,
		logger:   log,
	}
}

// Record runs the pipeline for one request. Every outcome, storage failures
// included, is reported in the result.
func (s *IngestService) Record(ctx context.Context, req *domain.IngestRequest) (*domain.IngestResult, error) {
	if err := s.nonces.Verify(req.Nonce, req.SessionID); err != nil {
		s.logger.Debug("Rejected click with invalid nonce")
		return &domain.IngestResult{OK: false, Error: domain.IngestErrBadNonce}, nil
	}

	in := s.canonicalize(req.Payload)
	if in.URL == "" {
		return &domain.IngestResult{OK: false, Error: domain.IngestErrMissingURL}, nil
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load settings for click")
		return &domain.IngestResult{OK: false, Error: domain.IngestErrSettings}, nil
	}
	if !utils.ValidPhoneLength(settings.DestinationPhone) {
		s.logger.Warn("Destination phone is not configured, ignoring click")
		return &domain.IngestResult{OK: false, Ignored: true, Reason: domain.ReasonNoPhone}, nil
	}

	if !matcher.Matches(in.URL, settings.DestinationPhone) {
		s.logger.WithField("url", in.URL).Debug("Click does not target destination")
		return &domain.IngestResult{OK: false, Ignored: true, Reason: domain.ReasonURLMismatch, URL: in.URL}, nil
	}

	click := s.buildClick(in, req)
	id, err := s.repo.Insert(ctx, click)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"url":      click.URL,
			"page_url": click.PageURL,
		}).Error("Failed to insert click")
		return &domain.IngestResult{OK: false, Error: domain.IngestErrDBInsert}, nil
	}

	s.logger.WithFields(map[string]interface{}{
		"id":          id,
		"destination": utils.MaskPhoneNumber(settings.DestinationPhone),
	}).Info("Click recorded")
	return &domain.IngestResult{OK: true, ID: id}, nil
}

// canonicalize merges the payload sources once. Discrete form fields win
// over the blob, including when present but empty.
func (s *IngestService) canonicalize(p domain.ClickPayload) clickInput {
	merged := make(map[string]string, len(payloadFields))
	for _, name := range payloadFields {
		if v, ok := p.Blob[name]; ok {
			merged[name] = blobString(v)
		}
		if p.Kind == domain.PayloadForm {
			if v, ok := p.Fields[name]; ok {
				merged[name] = v
			}
		}
	}

	userID, _ := strconv.ParseInt(strings.TrimSpace(merged[PayloadFieldUserID]), 10, 64)

	return clickInput{
		URL:         sanitizeURL(merged[PayloadFieldURL]),
		PageURL:     sanitizeURL(merged[PayloadFieldPageURL]),
		ElementTag:  s.sanitizeText(merged[PayloadFieldElementTag]),
		ElementText: s.sanitizeText(merged[PayloadFieldElementText]),
		UserID:      userID,
		GeoCity:     s.sanitizeText(merged[PayloadFieldGeoCity]),
		GeoRegion:   s.sanitizeText(merged[PayloadFieldGeoRegion]),
	}
}

func (s *IngestService) buildClick(in clickInput, req *domain.IngestRequest) *domain.NewClick {
	click := &domain.NewClick{
		ClickedAt:   s.now().UTC().Truncate(time.Second),
		URL:         truncateRunes(in.URL, MaxURLLength),
		PageURL:     in.PageURL,
		ElementTag:  truncateRunes(strings.ToUpper(in.ElementTag), MaxElementTagLength),
		ElementText: truncateRunes(in.ElementText, MaxElementTextLength),
		UserID:      in.UserID,
	}

	if click.PageURL == "" {
		click.PageURL = sanitizeURL(req.Referer)
	}
	if click.PageURL == "" {
		click.PageURL = s.siteURL + "/"
	}
	if click.ElementTag == "" {
		click.ElementTag = DefaultElementTag
	}
	if click.UserID <= 0 {
		click.UserID = max(0, req.SessionUserID)
	}
	if ua := limitUserAgent(req.UserAgent); ua != "" {
		click.UserAgent = &ua
	}
	if in.GeoCity != "" {
		city := truncateRunes(in.GeoCity, MaxGeoCityLength)
		click.GeoCity = &city
	}
	if in.GeoRegion != "" {
		region := truncateRunes(in.GeoRegion, MaxGeoRegionLength)
		click.GeoRegion = &region
	}
	return click
}

// sanitizeText strips markup and decodes the entities bluemonday escapes
func (s *IngestService) sanitizeText(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

// sanitizeURL drops whitespace and control characters and rejects schemes a
// click link cannot have
func sanitizeURL(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '<' || r == '>' || r == '"' {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return ""
	}

	if scheme, _, found := strings.Cut(cleaned, ":"); found && !strings.ContainsAny(scheme, "/?#") {
		switch strings.ToLower(scheme) {
		case "http", "https", "whatsapp":
		default:
			return ""
		}
	} else if u, err := url.Parse(cleaned); err == nil && u.Scheme == "" && !strings.HasPrefix(cleaned, "/") {
		// bare host such as wa.me/123
		cleaned = "http://" + cleaned
	}
	return cleaned
}

// limitUserAgent caps the user agent, marking truncation with an ellipsis
func limitUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	return truncateRunes(ua, MaxUserAgentLength-3) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// blobString renders a JSON blob value as form input would carry it
func blobString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
