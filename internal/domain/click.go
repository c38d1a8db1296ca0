package domain

import (
	"time"
)

// Projectable attributes of a click event
const (
	FieldID          = "id"
	FieldClickedAt   = "clicked_at"
	FieldURL         = "url"
	FieldPageURL     = "page_url"
	FieldElementTag  = "element_tag"
	FieldElementText = "element_text"
	FieldUserAgent   = "user_agent"
	FieldUserID      = "user_id"
	FieldGeoCity     = "geo_city"
	FieldGeoRegion   = "geo_region"

	// LegacyFieldCreatedAt is the pre-rename name of clicked_at
	LegacyFieldCreatedAt = "created_at"
)

// AllowedFields is the projection allow-list in response order
var AllowedFields = []string{
	FieldID,
	FieldClickedAt,
	FieldURL,
	FieldPageURL,
	FieldElementTag,
	FieldElementText,
	FieldUserAgent,
	FieldUserID,
	FieldGeoCity,
	FieldGeoRegion,
}

// TimestampLayout is how clicked_at is rendered on the wire
const TimestampLayout = "2006-01-02T15:04:05Z"

// ClickEvent is one recorded outbound click. Rows are append-only.
type ClickEvent struct {
	ID          int64     `json:"id" db:"id"`
	ClickedAt   time.Time `json:"clicked_at" db:"clicked_at"`
	URL         string    `json:"url" db:"url"`
	PageURL     string    `json:"page_url" db:"page_url"`
	ElementTag  string    `json:"element_tag" db:"element_tag"`
	ElementText string    `json:"element_text" db:"element_text"`
	UserAgent   *string   `json:"user_agent" db:"user_agent"`
	UserID      int64     `json:"user_id" db:"user_id"`
	GeoCity     *string   `json:"geo_city" db:"geo_city"`
	GeoRegion   *string   `json:"geo_region" db:"geo_region"`
}

// Project returns only the requested attributes, keyed by field name
func (e *ClickEvent) Project(fields []string) map[string]interface{} {
	item := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		switch f {
		case FieldID:
			item[f] = e.ID
		case FieldClickedAt:
			item[f] = e.ClickedAt.UTC().Format(TimestampLayout)
		case FieldURL:
			item[f] = e.URL
		case FieldPageURL:
			item[f] = e.PageURL
		case FieldElementTag:
			item[f] = e.ElementTag
		case FieldElementText:
			item[f] = e.ElementText
		case FieldUserAgent:
			item[f] = e.UserAgent
		case FieldUserID:
			item[f] = e.UserID
		case FieldGeoCity:
			item[f] = e.GeoCity
		case FieldGeoRegion:
			item[f] = e.GeoRegion
		}
	}
	return item
}

// NewClick is a validated event ready to be persisted
type NewClick struct {
	ClickedAt   time.Time
	URL         string
	PageURL     string
	ElementTag  string
	ElementText string
	UserAgent   *string
	UserID      int64
	GeoCity     *string
	GeoRegion   *string
}

// EventPosition is a decoded cursor: resume strictly after (ClickedAt, ID)
type EventPosition struct {
	ClickedAt time.Time
	ID        int64
}

// EventQuery selects one page of events. After set means cursor mode and
// Since/Until are ignored.
type EventQuery struct {
	Since  time.Time
	Until  time.Time
	After  *EventPosition
	Limit  int
	Fields []string
}

// EventRange echoes the effective window of a range query. Both sides are
// null in cursor mode.
type EventRange struct {
	EffectiveSince *string `json:"effective_since"`
	EffectiveUntil *string `json:"effective_until"`
}

// EventPage is one page of the read API
type EventPage struct {
	Range      EventRange               `json:"range"`
	Count      int                      `json:"count"`
	Items      []map[string]interface{} `json:"items"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// ClickTotals are the simple counts shown to administrators
type ClickTotals struct {
	Total  int64 `json:"total"`
	Last7  int64 `json:"last7"`
	Last30 int64 `json:"last30"`
}
