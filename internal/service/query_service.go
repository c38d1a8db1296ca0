package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clicktrack/internal/cursor"
	"clicktrack/internal/domain"
	"clicktrack/internal/repository"
	apperrors "clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// DefaultRangeDays is the range-mode window when since is omitted
const DefaultRangeDays = 7

var (
	dateOnly    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	strictStamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
)

// QueryParams are the raw read API parameters
type QueryParams struct {
	Since      string
	Until      string
	Cursor     string
	NextCursor string // alias, used only when Cursor is empty
	Limit      string
	Fields     string

	// LenientFields drops unknown field names instead of rejecting them
	LenientFields bool
}

// QueryLimits bound page sizes and the range-mode lookback
type QueryLimits struct {
	DefaultPageSize int
	MaxPageSize     int
	MaxLookbackDays int
}

// QueryService plans and runs read API queries
type QueryService struct {
	repo   repository.ClickRepository
	limits QueryLimits
	now    func() time.Time
	logger *logger.Logger
}

// NewQueryService creates a query service
func NewQueryService(repo repository.ClickRepository, limits QueryLimits, log *logger.Logger) *QueryService {
	return &QueryService{repo: repo, limits: limits, now: time.Now, logger: log}
}

// Limits returns the configured bounds
func (s *QueryService) Limits() QueryLimits {
	return s.limits
}

// Plan validates params and builds the storage query. Range echoes the
// effective window and is null on both sides in cursor mode.
func (s *QueryService) Plan(p QueryParams) (domain.EventQuery, domain.EventRange, error) {
	var q domain.EventQuery

	limit, err := s.parseLimit(p.Limit)
	if err != nil {
		return q, domain.EventRange{}, err
	}
	q.Limit = limit

	if p.LenientFields {
		q.Fields = ParseFieldsLenient(p.Fields)
	} else if q.Fields, err = ParseFieldsStrict(p.Fields); err != nil {
		return q, domain.EventRange{}, err
	}

	since, err := parseDateParam("since", p.Since)
	if err != nil {
		return q, domain.EventRange{}, err
	}
	until, err := parseDateParam("until", p.Until)
	if err != nil {
		return q, domain.EventRange{}, err
	}

	token := strings.TrimSpace(p.Cursor)
	if token == "" {
		token = strings.TrimSpace(p.NextCursor)
	}
	if token != "" {
		c, err := cursor.Decode(token)
		if err != nil {
			return q, domain.EventRange{}, apperrors.NewValidationError(apperrors.CodeInvalidCursor, "Invalid cursor")
		}
		q.After = &domain.EventPosition{ClickedAt: c.Time(), ID: c.I}
		return q, domain.EventRange{}, nil
	}

	if until == nil {
		now := s.now().UTC().Truncate(time.Second)
		until = &now
	}
	if since == nil {
		from := until.AddDate(0, 0, -DefaultRangeDays)
		since = &from
	}

	if since.After(*until) {
		return q, domain.EventRange{}, apperrors.NewValidationError(apperrors.CodeInvalidRange, "since must not be after until")
	}
	lookback := time.Duration(s.limits.MaxLookbackDays) * 24 * time.Hour
	if until.Sub(*since) > lookback {
		return q, domain.EventRange{}, apperrors.NewValidationError(apperrors.CodeWindowTooLarge,
			fmt.Sprintf("The requested window exceeds %d days", s.limits.MaxLookbackDays))
	}

	q.Since, q.Until = *since, *until
	sinceStr := since.Format(domain.TimestampLayout)
	untilStr := until.Format(domain.TimestampLayout)
	return q, domain.EventRange{EffectiveSince: &sinceStr, EffectiveUntil: &untilStr}, nil
}

// List returns one page. next_cursor is set when the page is full, so a
// dataset that ends exactly on a page boundary yields one trailing empty page.
func (s *QueryService) List(ctx context.Context, p QueryParams) (*domain.EventPage, error) {
	q, rng, err := s.Plan(p)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"cursor_mode": q.After != nil,
			"limit":       q.Limit,
		}).Error("Failed to list click events")
		return nil, apperrors.NewInternalError("Failed to read click events", err)
	}

	page := &domain.EventPage{
		Range: rng,
		Count: len(events),
		Items: make([]map[string]interface{}, 0, len(events)),
	}
	for _, e := range events {
		page.Items = append(page.Items, e.Project(q.Fields))
	}
	if len(events) == q.Limit {
		last := events[len(events)-1]
		page.NextCursor = cursor.FromEvent(last.ClickedAt, last.ID).String()
	}
	return page, nil
}

// parseLimit applies the default for an empty value and clamps numbers into
// [1, MaxPageSize]. Non-numeric input is rejected.
func (s *QueryService) parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.limits.DefaultPageSize, nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) {
		return 0, apperrors.NewValidationError(apperrors.CodeInvalidLimit, "limit must be numeric")
	}
	switch {
	case n < 1:
		return 1, nil
	case n > float64(s.limits.MaxPageSize):
		return s.limits.MaxPageSize, nil
	default:
		return int(n), nil
	}
}

// parseDateParam accepts YYYY-MM-DDTHH:MM:SSZ or YYYY-MM-DD. Empty is nil.
func parseDateParam(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if dateOnly.MatchString(raw) {
		raw += "T00:00:00Z"
	}

	t, err := time.Parse(domain.TimestampLayout, raw)
	if err != nil || !strictStamp.MatchString(raw) {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidDatetime,
			fmt.Sprintf("Invalid %s. Use ISO-8601 UTC, e.g. 2025-08-29T23:59:59Z", name))
	}
	t = t.UTC()
	return &t, nil
}
