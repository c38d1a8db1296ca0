package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"clicktrack/internal/domain"
)

// clickRepository stores click events in PostgreSQL through database/sql
type clickRepository struct {
	db     *sql.DB
	readDB *sql.DB
	schema SchemaAdapter
}

// NewClickRepository creates a click repository. readDB may be the same
// handle as db.
func NewClickRepository(db, readDB *sql.DB, schema SchemaAdapter) ClickRepository {
	if readDB == nil {
		readDB = db
	}
	return &clickRepository{db: db, readDB: readDB, schema: schema}
}

// List returns one page ordered by (clicked_at, id). In cursor mode the
// compound predicate keeps the order total when timestamps collide.
func (r *clickRepository) List(ctx context.Context, q domain.EventQuery) ([]*domain.ClickEvent, error) {
	cols, selectList := r.schema.selectList(q.Fields)
	tc := r.schema.TimeColumn

	var (
		where string
		args  []interface{}
	)
	if q.After != nil {
		where = fmt.Sprintf("(%[1]s > $1 OR (%[1]s = $1 AND id > $2))", tc)
		args = []interface{}{q.After.ClickedAt.UTC(), q.After.ID}
	} else {
		where = fmt.Sprintf("%[1]s >= $1 AND %[1]s <= $2", tc)
		args = []interface{}{q.Since.UTC(), q.Until.UTC()}
	}
	args = append(args, q.Limit)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC, id ASC LIMIT $%d",
		selectList, r.schema.Table, where, tc, len(args))

	rows, err := r.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query click events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to scan click events: %w", err)
	}
	return events, nil
}

// Insert appends an event and returns the storage-assigned id
func (r *clickRepository) Insert(ctx context.Context, click *domain.NewClick) (int64, error) {
	cols := r.schema.insertColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	args := []interface{}{
		click.ClickedAt.UTC(),
		click.URL,
		click.PageURL,
		click.ElementTag,
		click.ElementText,
		nullString(click.UserAgent),
		click.UserID,
	}
	if r.schema.HasGeo {
		args = append(args, nullString(click.GeoCity), nullString(click.GeoRegion))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.schema.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert click event: %w", err)
	}
	return id, nil
}

// Totals counts events overall and within the last 7 and 30 days
func (r *clickRepository) Totals(ctx context.Context, now time.Time) (*domain.ClickTotals, error) {
	tc := r.schema.TimeColumn
	query := fmt.Sprintf("SELECT COUNT(*), COUNT(*) FILTER (WHERE %[1]s >= $1), COUNT(*) FILTER (WHERE %[1]s >= $2) FROM %[2]s",
		tc, r.schema.Table)

	totals := &domain.ClickTotals{}
	err := r.readDB.QueryRowContext(ctx, query,
		now.UTC().AddDate(0, 0, -7),
		now.UTC().AddDate(0, 0, -30),
	).Scan(&totals.Total, &totals.Last7, &totals.Last30)
	if err != nil {
		return nil, fmt.Errorf("failed to count click events: %w", err)
	}
	return totals, nil
}

// Recent returns events at or after since, newest id first
func (r *clickRepository) Recent(ctx context.Context, since time.Time, limit int) ([]*domain.ClickEvent, error) {
	cols, selectList := r.schema.selectList([]string{domain.FieldPageURL, domain.FieldElementText})
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= $1 ORDER BY id DESC LIMIT $2",
		selectList, r.schema.Table, r.schema.TimeColumn)

	rows, err := r.readDB.QueryContext(ctx, query, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent click events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent click events: %w", err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows, cols []string) ([]*domain.ClickEvent, error) {
	events := make([]*domain.ClickEvent, 0)
	for rows.Next() {
		s := &eventScanner{event: &domain.ClickEvent{}}
		targets := make([]interface{}, len(cols))
		for i, c := range cols {
			targets[i] = s.target(c)
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		events = append(events, s.finish())
	}
	return events, rows.Err()
}

// eventScanner holds nullable scan targets for one row
type eventScanner struct {
	event                                     *domain.ClickEvent
	url, pageURL, tag, text, ua, city, region sql.NullString
	userID                                    sql.NullInt64
}

func (s *eventScanner) target(col string) interface{} {
	switch col {
	case domain.FieldID:
		return &s.event.ID
	case domain.FieldClickedAt:
		return &s.event.ClickedAt
	case domain.FieldURL:
		return &s.url
	case domain.FieldPageURL:
		return &s.pageURL
	case domain.FieldElementTag:
		return &s.tag
	case domain.FieldElementText:
		return &s.text
	case domain.FieldUserAgent:
		return &s.ua
	case domain.FieldUserID:
		return &s.userID
	case domain.FieldGeoCity:
		return &s.city
	case domain.FieldGeoRegion:
		return &s.region
	}
	var discard interface{}
	return &discard
}

func (s *eventScanner) finish() *domain.ClickEvent {
	e := s.event
	e.ClickedAt = e.ClickedAt.UTC()
	e.URL = s.url.String
	e.PageURL = s.pageURL.String
	e.ElementTag = s.tag.String
	e.ElementText = s.text.String
	e.UserID = s.userID.Int64
	e.UserAgent = stringPtr(s.ua)
	e.GeoCity = stringPtr(s.city)
	e.GeoRegion = stringPtr(s.region)
	return e
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
