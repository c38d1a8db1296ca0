package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"clicktrack/internal/domain"
	"clicktrack/internal/repository"
	"clicktrack/pkg/distlock"
	"clicktrack/pkg/httpretry"
	"clicktrack/pkg/logger"
)

const (
	hubSchemaVersion = 1
	hubLookbackDays  = 7
	hubUserAgent     = "worker"
)

// HubConfig describes where and how often events are forwarded
type HubConfig struct {
	Endpoint       string
	Host           string
	Token          string
	SiteURL        string
	ServiceVersion string
	Interval       time.Duration
	BatchSize      int
}

type hubSite struct {
	Domain  string `json:"domain"`
	BaseURL string `json:"base_url"`
}

type hubEvent struct {
	EventUID    string `json:"event_uid"`
	ClickedAt   string `json:"clicked_at"`
	PageURL     string `json:"page_url"`
	Referer     string `json:"referer"`
	ElementText string `json:"element_text"`
	UserAgent   string `json:"user_agent"`
}

type hubBatch struct {
	SchemaVersion  int        `json:"schema_version"`
	ServiceVersion string     `json:"service_version"`
	Site           hubSite    `json:"site"`
	Token          string     `json:"token"`
	Events         []hubEvent `json:"events"`
}

// HubForwarder periodically pushes recent clicks to an external hub. Delivery
// is best-effort: a failed batch is logged and the next tick sends whatever
// is recent then.
type HubForwarder struct {
	repo   repository.ClickRepository
	lock   distlock.Lock
	client httpretry.Doer
	cfg    HubConfig
	now    func() time.Time
	logger *logger.Logger

	mu        sync.Mutex
	ticker    *time.Ticker
	stop      chan struct{}
	isRunning bool
}

// NewHubForwarder creates a forwarder. lock keeps a single sender across
// instances.
func NewHubForwarder(repo repository.ClickRepository, lock distlock.Lock, client httpretry.Doer, cfg HubConfig, log *logger.Logger) *HubForwarder {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &HubForwarder{
		repo:   repo,
		lock:   lock,
		client: client,
		cfg:    cfg,
		now:    time.Now,
		logger: log.Named("hub"),
	}
}

// Start begins periodic forwarding
func (f *HubForwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isRunning {
		return nil
	}

	f.ticker = time.NewTicker(f.cfg.Interval)
	f.stop = make(chan struct{})
	go f.run(ctx, f.ticker, f.stop)

	f.isRunning = true
	f.logger.WithFields(map[string]interface{}{
		"endpoint": f.cfg.Endpoint,
		"interval": f.cfg.Interval.String(),
	}).Info("Hub forwarder started")
	return nil
}

// Stop halts the ticker. A sync in flight finishes on its own.
func (f *HubForwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning {
		return nil
	}

	f.ticker.Stop()
	close(f.stop)
	f.isRunning = false
	f.logger.Info("Hub forwarder stopped")
	return nil
}

func (f *HubForwarder) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.C:
			if _, err := f.SyncOnce(ctx); err != nil {
				f.logger.WithError(err).Warn("Hub sync failed")
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce sends one batch if this instance wins the lock. It returns the
// number of events delivered.
func (f *HubForwarder) SyncOnce(ctx context.Context) (int, error) {
	acquired, err := f.lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire hub lock: %w", err)
	}
	if !acquired {
		f.logger.Debug("Hub lock held by another instance, skipping")
		return 0, nil
	}
	defer func() {
		if err := f.lock.Release(context.WithoutCancel(ctx)); err != nil {
			f.logger.WithError(err).Warn("Failed to release hub lock")
		}
	}()

	since := f.now().UTC().AddDate(0, 0, -hubLookbackDays)
	events, err := f.repo.Recent(ctx, since, f.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read recent clicks: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(f.buildBatch(events))
	if err != nil {
		return 0, fmt.Errorf("failed to encode hub batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hub request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("hub responded with status %d", resp.StatusCode)
	}

	f.logger.WithField("events", len(events)).Info("Forwarded clicks to hub")
	return len(events), nil
}

func (f *HubForwarder) buildBatch(events []*domain.ClickEvent) hubBatch {
	batch := hubBatch{
		SchemaVersion:  hubSchemaVersion,
		ServiceVersion: f.cfg.ServiceVersion,
		Site:           hubSite{Domain: f.cfg.Host, BaseURL: f.cfg.SiteURL},
		Token:          f.cfg.Token,
		Events:         make([]hubEvent, 0, len(events)),
	}
	for _, e := range events {
		batch.Events = append(batch.Events, hubEvent{
			EventUID:    HubEventUID(f.cfg.Host, e.ID),
			ClickedAt:   e.ClickedAt.UTC().Format(domain.TimestampLayout),
			PageURL:     e.PageURL,
			ElementText: e.ElementText,
			UserAgent:   hubUserAgent,
		})
	}
	return batch
}

// HubEventUID is stable per site and row so the hub can drop resends
func HubEventUID(host string, id int64) string {
	sum := sha256.Sum256([]byte(host + "|" + strconv.FormatInt(id, 10)))
	return fmt.Sprintf("%x", sum)
}
