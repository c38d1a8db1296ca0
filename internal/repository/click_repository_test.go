package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicktrack/internal/domain"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, func(SchemaAdapter) ClickRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return mock, func(schema SchemaAdapter) ClickRepository {
		return NewClickRepository(db, nil, schema)
	}
}

func TestSchemaForVersion(t *testing.T) {
	tests := []struct {
		version  uint
		expected SchemaAdapter
		wantErr  bool
	}{
		{0, SchemaAdapter{}, true},
		{1, LegacySchema, false},
		{2, CurrentSchema, false},
		{7, CurrentSchema, false},
	}

	for _, tt := range tests {
		schema, err := SchemaForVersion(tt.version)
		if tt.wantErr {
			assert.Error(t, err, "version %d", tt.version)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, schema)
	}
}

func TestClickRepository_ListRange(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, clicked_at, url FROM click_events WHERE clicked_at >= $1 AND clicked_at <= $2 ORDER BY clicked_at ASC, id ASC LIMIT $3",
	)).
		WithArgs(since, until, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clicked_at", "url"}).
			AddRow(int64(1), t1, "https://wa.me/5511999999999").
			AddRow(int64(2), t1, nil))

	events, err := repo.List(context.Background(), domain.EventQuery{
		Since:  since,
		Until:  until,
		Limit:  50,
		Fields: []string{domain.FieldURL},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, int64(1), events[0].ID)
	assert.True(t, events[0].ClickedAt.Equal(t1))
	assert.Equal(t, "https://wa.me/5511999999999", events[0].URL)
	assert.Equal(t, "", events[1].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickRepository_ListAfterCursor(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	after := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, clicked_at, user_agent, user_id FROM click_events WHERE (clicked_at > $1 OR (clicked_at = $1 AND id > $2)) ORDER BY clicked_at ASC, id ASC LIMIT $3",
	)).
		WithArgs(after, int64(41), 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clicked_at", "user_agent", "user_id"}).
			AddRow(int64(42), after, "Mozilla/5.0", int64(7)).
			AddRow(int64(43), after.Add(time.Second), nil, nil))

	events, err := repo.List(context.Background(), domain.EventQuery{
		After:  &domain.EventPosition{ClickedAt: after, ID: 41},
		Limit:  2,
		Fields: []string{domain.FieldID, domain.FieldUserAgent, domain.FieldUserID},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NotNil(t, events[0].UserAgent)
	assert.Equal(t, "Mozilla/5.0", *events[0].UserAgent)
	assert.Equal(t, int64(7), events[0].UserID)
	assert.Nil(t, events[1].UserAgent)
	assert.Equal(t, int64(0), events[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickRepository_LegacySchema(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(LegacySchema)

	after := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, created_at AS clicked_at, NULL AS geo_city FROM wa_clicks WHERE (created_at > $1 OR (created_at = $1 AND id > $2)) ORDER BY created_at ASC, id ASC LIMIT $3",
	)).
		WithArgs(after, int64(5), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clicked_at", "geo_city"}).
			AddRow(int64(6), after, nil))

	events, err := repo.List(context.Background(), domain.EventQuery{
		After:  &domain.EventPosition{ClickedAt: after, ID: 5},
		Limit:  10,
		Fields: []string{domain.FieldGeoCity},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].GeoCity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickRepository_ListError(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := repo.List(context.Background(), domain.EventQuery{Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query click events")
}

func TestClickRepository_Insert(t *testing.T) {
	tests := []struct {
		name   string
		schema SchemaAdapter
		query  string
		args   func(at time.Time) []interface{}
	}{
		{
			name:   "current schema",
			schema: CurrentSchema,
			query:  "INSERT INTO click_events (clicked_at, url, page_url, element_tag, element_text, user_agent, user_id, geo_city, geo_region) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id",
			args: func(at time.Time) []interface{} {
				return []interface{}{at, "https://wa.me/5511999999999", "https://shop.example.com/", "A", "Chat", "Mozilla/5.0", int64(0), "São Paulo", nil}
			},
		},
		{
			name:   "legacy schema",
			schema: LegacySchema,
			query:  "INSERT INTO wa_clicks (created_at, url, page_url, element_tag, element_text, user_agent, user_id) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
			args: func(at time.Time) []interface{} {
				return []interface{}{at, "https://wa.me/5511999999999", "https://shop.example.com/", "A", "Chat", "Mozilla/5.0", int64(0)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, newRepo := setupMockDB(t)
			repo := newRepo(tt.schema)

			at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
			ua := "Mozilla/5.0"
			city := "São Paulo"

			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).
				WithArgs(toDriverArgs(tt.args(at))...).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(99)))

			id, err := repo.Insert(context.Background(), &domain.NewClick{
				ClickedAt:   at,
				URL:         "https://wa.me/5511999999999",
				PageURL:     "https://shop.example.com/",
				ElementTag:  "A",
				ElementText: "Chat",
				UserAgent:   &ua,
				GeoCity:     &city,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(99), id)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClickRepository_InsertError(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	mock.ExpectQuery("INSERT INTO click_events").WillReturnError(errors.New("disk full"))

	_, err := repo.Insert(context.Background(), &domain.NewClick{ClickedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert click event")
}

func TestClickRepository_Totals(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE clicked_at >= $1), COUNT(*) FILTER (WHERE clicked_at >= $2) FROM click_events",
	)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "last7", "last30"}).AddRow(int64(120), int64(9), int64(40)))

	totals, err := repo.Totals(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, &domain.ClickTotals{Total: 120, Last7: 9, Last30: 40}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickRepository_Recent(t *testing.T) {
	mock, newRepo := setupMockDB(t)
	repo := newRepo(CurrentSchema)

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	at := since.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, clicked_at, page_url, element_text FROM click_events WHERE clicked_at >= $1 ORDER BY id DESC LIMIT $2",
	)).
		WithArgs(since, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "clicked_at", "page_url", "element_text"}).
			AddRow(int64(8), at, "https://shop.example.com/p", "Buy").
			AddRow(int64(7), at, nil, nil))

	events, err := repo.Recent(context.Background(), since, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(8), events[0].ID)
	assert.Equal(t, "Buy", events[0].ElementText)
	assert.Equal(t, "", events[1].PageURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func toDriverArgs(values []interface{}) []sqlmock.Argument {
	args := make([]sqlmock.Argument, len(values))
	for i, v := range values {
		args[i] = valueArg{v}
	}
	return args
}

// valueArg matches a converted driver value by equality
type valueArg struct{ expected interface{} }

func (a valueArg) Match(v interface{}) bool {
	if a.expected == nil {
		return v == nil
	}
	if at, ok := a.expected.(time.Time); ok {
		vt, ok := v.(time.Time)
		return ok && vt.Equal(at)
	}
	return assert.ObjectsAreEqual(a.expected, v)
}
