package repository

import (
	"fmt"
	"strings"

	"clicktrack/internal/domain"
	"clicktrack/pkg/migrations"
)

// SchemaAdapter pins the table and timestamp column for the migration
// version the server started against.
type SchemaAdapter struct {
	Table      string
	TimeColumn string
	HasGeo     bool
}

var (
	CurrentSchema = SchemaAdapter{Table: "click_events", TimeColumn: "clicked_at", HasGeo: true}
	LegacySchema  = SchemaAdapter{Table: "wa_clicks", TimeColumn: "created_at", HasGeo: false}
)

// SchemaForVersion maps an applied migration version to its adapter
func SchemaForVersion(version uint) (SchemaAdapter, error) {
	switch {
	case version >= migrations.VersionCurrent:
		return CurrentSchema, nil
	case version == migrations.VersionLegacy:
		return LegacySchema, nil
	default:
		return SchemaAdapter{}, fmt.Errorf("no click table at schema version %d, run migrations first", version)
	}
}

// column returns the select expression for a canonical field name
func (s SchemaAdapter) column(field string) string {
	switch field {
	case domain.FieldClickedAt:
		if s.TimeColumn == domain.FieldClickedAt {
			return s.TimeColumn
		}
		return s.TimeColumn + " AS " + domain.FieldClickedAt
	case domain.FieldGeoCity, domain.FieldGeoRegion:
		if !s.HasGeo {
			return "NULL AS " + field
		}
	}
	return field
}

// selectList always includes id and clicked_at so the caller can build a
// cursor from the last row.
func (s SchemaAdapter) selectList(fields []string) ([]string, string) {
	cols := []string{domain.FieldID, domain.FieldClickedAt}
	for _, f := range fields {
		if f != domain.FieldID && f != domain.FieldClickedAt {
			cols = append(cols, f)
		}
	}

	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = s.column(c)
	}
	return cols, strings.Join(exprs, ", ")
}

// insertColumns lists writable columns in placeholder order
func (s SchemaAdapter) insertColumns() []string {
	cols := []string{s.TimeColumn, "url", "page_url", "element_tag", "element_text", "user_agent", "user_id"}
	if s.HasGeo {
		cols = append(cols, domain.FieldGeoCity, domain.FieldGeoRegion)
	}
	return cols
}
