package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"warden/metrics"
	"warden/waf"
)

// Fetcher pulls the current entries of one feed from its provider.
type Fetcher interface {
	FetchFeed(ctx context.Context, feedID string) ([]Entry, error)
}

// Refresher pulls all registered feeds on a schedule. A failed pull keeps the
// feed's last good entries and marks the engine degraded until a pull
// succeeds again.
type Refresher struct {
	logger  zerolog.Logger
	engine  Engine
	fetcher Fetcher
	feedIDs []string
	timeout time.Duration
	health  *waf.HealthState
	cron    *cron.Cron
}

// NewRefresher creates a refresher for the given feeds.
func NewRefresher(logger zerolog.Logger, engine Engine, fetcher Fetcher, feedIDs []string, timeout time.Duration, health *waf.HealthState) *Refresher {
	return &Refresher{
		logger:  logger,
		engine:  engine,
		fetcher: fetcher,
		feedIDs: feedIDs,
		timeout: timeout,
		health:  health,
		cron:    cron.New(),
	}
}

// Start refreshes all feeds once and then on the given cron schedule.
func (r *Refresher) Start(schedule string) error {
	r.RefreshAll(context.Background())

	if _, err := r.cron.AddFunc(schedule, func() { r.RefreshAll(context.Background()) }); err != nil {
		return fmt.Errorf("invalid feed refresh schedule %q: %v", schedule, err)
	}

	r.cron.Start()
	return nil
}

// Stop halts scheduled refreshes. A refresh in flight finishes.
func (r *Refresher) Stop() {
	r.cron.Stop()
}

// RefreshAll pulls every registered feed. Each feed fails or succeeds on its
// own.
func (r *Refresher) RefreshAll(ctx context.Context) {
	failed := false

	for _, feedID := range r.feedIDs {
		if err := r.refreshFeed(ctx, feedID); err != nil {
			r.logger.Warn().Err(err).Str("feedId", feedID).Msg("Threat feed refresh failed, keeping last good snapshot")
			metrics.FeedRefreshFailures.Inc()
			failed = true
		}
	}

	r.health.SetFeedDegraded(failed)
}

func (r *Refresher) refreshFeed(ctx context.Context, feedID string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	entries, err := r.fetcher.FetchFeed(fetchCtx, feedID)
	if err != nil {
		return err
	}

	r.engine.PutFeed(feedID, entries)
	return nil
}

// HTTPFetcher pulls feeds as JSON entry arrays from a provider base URL.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// FetchFeed implements Fetcher.
func (f *HTTPFetcher) FetchFeed(ctx context.Context, feedID string) (entries []Entry, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/"+feedID, nil)
	if err != nil {
		return
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("feed provider returned status %v for feed %v", resp.StatusCode, feedID)
		return
	}

	err = json.NewDecoder(resp.Body).Decode(&entries)
	return
}
