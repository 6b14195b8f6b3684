package threatintel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"warden/testutils"
	"warden/waf"
)

type mockFetcher struct {
	feeds map[string][]Entry
	errs  map[string]error
}

func (f *mockFetcher) FetchFeed(ctx context.Context, feedID string) ([]Entry, error) {
	if err := f.errs[feedID]; err != nil {
		return nil, err
	}
	return f.feeds[feedID], nil
}

func TestRefreshAllCommitsFeeds(t *testing.T) {
	engine := NewEngine(testutils.NewTestLogger(t), newMockFileSystem())
	health := &waf.HealthState{}
	fetcher := &mockFetcher{feeds: map[string][]Entry{
		"feed-a": {{Indicator: "6.6.6.6", FeedID: "feed-a", Severity: 4}},
	}}

	r := NewRefresher(testutils.NewTestLogger(t), engine, fetcher, []string{"feed-a"}, time.Second, health)
	r.RefreshAll(context.Background())

	assert.Len(t, engine.Check("6.6.6.6", now), 1)
	assert.False(t, health.FeedDegraded())
}

func TestRefreshFailureKeepsLastGoodSnapshot(t *testing.T) {
	engine := NewEngine(testutils.NewTestLogger(t), newMockFileSystem())
	health := &waf.HealthState{}
	fetcher := &mockFetcher{
		feeds: map[string][]Entry{
			"feed-a": {{Indicator: "6.6.6.6", FeedID: "feed-a", Severity: 4}},
		},
		errs: map[string]error{},
	}

	r := NewRefresher(testutils.NewTestLogger(t), engine, fetcher, []string{"feed-a"}, time.Second, health)
	r.RefreshAll(context.Background())
	assert.Len(t, engine.Check("6.6.6.6", now), 1)

	// The provider goes down; the committed entries must survive.
	fetcher.errs["feed-a"] = errors.New("provider unavailable")
	r.RefreshAll(context.Background())

	assert.Len(t, engine.Check("6.6.6.6", now), 1)
	assert.True(t, health.FeedDegraded())

	// And recover once the provider is back.
	delete(fetcher.errs, "feed-a")
	r.RefreshAll(context.Background())
	assert.False(t, health.FeedDegraded())
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	engine := NewEngine(testutils.NewTestLogger(t), newMockFileSystem())
	r := NewRefresher(testutils.NewTestLogger(t), engine, &mockFetcher{}, nil, time.Second, &waf.HealthState{})
	defer r.Stop()

	err := r.Start("not a schedule")
	assert.NotNil(t, err)
}
