package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"clicktrack/internal/domain"
)

// fakeSettingsRepo is an in-memory settings table
type fakeSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
	reads  int
	err    error
}

func newFakeSettingsRepo(values map[string]string) *fakeSettingsRepo {
	if values == nil {
		values = map[string]string{}
	}
	return &fakeSettingsRepo{values: values}
}

func (f *fakeSettingsRepo) GetAll(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettingsRepo) Set(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for k, v := range values {
		f.values[k] = v
	}
	return nil
}

// fakeClickRepo applies the same ordering and predicates as the SQL
// repository over an in-memory slice
type fakeClickRepo struct {
	mu        sync.Mutex
	events    []*domain.ClickEvent
	nextID    int64
	inserted  []*domain.NewClick
	lastQuery domain.EventQuery
	err       error
}

func newFakeClickRepo(events ...*domain.ClickEvent) *fakeClickRepo {
	repo := &fakeClickRepo{events: events}
	for _, e := range events {
		if e.ID > repo.nextID {
			repo.nextID = e.ID
		}
	}
	return repo
}

func (f *fakeClickRepo) List(_ context.Context, q domain.EventQuery) ([]*domain.ClickEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}

	sorted := append([]*domain.ClickEvent(nil), f.events...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ClickedAt.Equal(sorted[j].ClickedAt) {
			return sorted[i].ClickedAt.Before(sorted[j].ClickedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]*domain.ClickEvent, 0, q.Limit)
	for _, e := range sorted {
		if len(out) == q.Limit {
			break
		}
		if q.After != nil {
			if e.ClickedAt.After(q.After.ClickedAt) || (e.ClickedAt.Equal(q.After.ClickedAt) && e.ID > q.After.ID) {
				out = append(out, e)
			}
			continue
		}
		if !e.ClickedAt.Before(q.Since) && !e.ClickedAt.After(q.Until) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeClickRepo) Insert(_ context.Context, click *domain.NewClick) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.inserted = append(f.inserted, click)
	f.events = append(f.events, &domain.ClickEvent{
		ID:          f.nextID,
		ClickedAt:   click.ClickedAt,
		URL:         click.URL,
		PageURL:     click.PageURL,
		ElementTag:  click.ElementTag,
		ElementText: click.ElementText,
		UserAgent:   click.UserAgent,
		UserID:      click.UserID,
		GeoCity:     click.GeoCity,
		GeoRegion:   click.GeoRegion,
	})
	return f.nextID, nil
}

func (f *fakeClickRepo) Totals(_ context.Context, now time.Time) (*domain.ClickTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	totals := &domain.ClickTotals{Total: int64(len(f.events))}
	for _, e := range f.events {
		if !e.ClickedAt.Before(now.AddDate(0, 0, -7)) {
			totals.Last7++
		}
		if !e.ClickedAt.Before(now.AddDate(0, 0, -30)) {
			totals.Last30++
		}
	}
	return totals, nil
}

func (f *fakeClickRepo) Recent(_ context.Context, since time.Time, limit int) ([]*domain.ClickEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.ClickEvent, 0)
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if !f.events[i].ClickedAt.Before(since) {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

var errStorage = errors.New("storage unavailable")
