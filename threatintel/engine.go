// Package threatintel correlates request source addresses against ingested
// threat feed entries. Feed refreshes commit whole snapshots; request
// evaluation always reads the most recently committed one and never blocks
// on a refresh.
package threatintel

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"warden/ipaddresses"
	"warden/waf"
)

const feedCacheName = "threatfeedcache.json"

// Entry is one indicator ingested from a threat feed. An entry is created on
// feed ingestion and disappears on expiry or when its feed refreshes without
// it.
type Entry struct {
	// Indicator is an IP address, CIDR block, or domain name.
	Indicator string `json:"indicator"`
	FeedID    string `json:"feedId"`
	FeedType  string `json:"feedType"`

	// Severity ranges 1 (informational) to 5 (critical).
	Severity int `json:"severity"`

	// Expiry is the time after which this entry no longer matches. Zero
	// means the entry only disappears on feed refresh.
	Expiry time.Time `json:"expiry,omitempty"`
}

func (e Entry) expired(now time.Time) bool {
	return !e.Expiry.IsZero() && !now.Before(e.Expiry)
}

// Engine is the threat intel correlator.
type Engine interface {
	waf.ThreatIntelEngine

	// PutFeed replaces all entries of one feed and commits a new
	// snapshot.
	PutFeed(feedID string, entries []Entry)

	// EntryCount reports the number of entries across all feeds in the
	// current snapshot.
	EntryCount() int
}

// FileSystem abstracts where the last good feed data lives.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
}

type engineImpl struct {
	logger zerolog.Logger
	fs     FileSystem

	mu      sync.Mutex // serializes feed writers
	feeds   map[string][]Entry
	current atomic.Value // *snapshot
}

// snapshot is an immutable index over all feed entries: exact IPs hashed for
// O(1) lookup, CIDR indicators in a parsed list.
type snapshot struct {
	byIP  map[string][]Entry
	cidrs []cidrEntry
	count int
}

type cidrEntry struct {
	prefix uint32
	mask   uint32
	entry  Entry
}

// NewEngine creates the correlator, restoring the last good feed data from
// disk if available.
func NewEngine(logger zerolog.Logger, fs FileSystem) Engine {
	e := &engineImpl{
		logger: logger,
		fs:     fs,
		feeds:  make(map[string][]Entry),
	}

	if feeds, err := e.readCache(); err == nil {
		e.feeds = feeds
	}
	e.current.Store(e.buildSnapshot())

	return e
}

// Check returns all non-expired entries matching the address.
func (e *engineImpl) Check(ip string, now time.Time) (matches []waf.FeedMatch) {
	snap := e.current.Load().(*snapshot)

	for _, entry := range snap.byIP[ip] {
		if entry.expired(now) {
			continue
		}
		matches = append(matches, toFeedMatch(entry))
	}

	addr, err := ipaddresses.ParseIPv4(ip)
	if err != nil {
		return
	}

	for _, c := range snap.cidrs {
		if addr&c.mask != c.prefix || c.entry.expired(now) {
			continue
		}
		matches = append(matches, toFeedMatch(c.entry))
	}

	return
}

func (e *engineImpl) PutFeed(feedID string, entries []Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.feeds[feedID] = entries
	e.current.Store(e.buildSnapshot())

	if err := e.writeCache(); err != nil {
		e.logger.Err(err).Msg("Error while writing threat feed cache")
	}

	e.logger.Info().Str("feedId", feedID).Int("entries", len(entries)).Msg("Threat feed committed")
}

func (e *engineImpl) EntryCount() int {
	return e.current.Load().(*snapshot).count
}

// buildSnapshot indexes all feeds. Domain indicators are carried in the
// count but not indexed for IP lookup.
func (e *engineImpl) buildSnapshot() *snapshot {
	snap := &snapshot{byIP: make(map[string][]Entry)}

	for _, entries := range e.feeds {
		for _, entry := range entries {
			snap.count++

			if strings.ContainsRune(entry.Indicator, '/') {
				prefix, mask, err := ipaddresses.ParseCIDR(entry.Indicator)
				if err != nil {
					e.logger.Warn().Str("indicator", entry.Indicator).Msg("Skipping unparseable CIDR indicator")
					continue
				}
				snap.cidrs = append(snap.cidrs, cidrEntry{prefix: prefix, mask: mask, entry: entry})
				continue
			}

			if _, err := ipaddresses.ParseIPv4(entry.Indicator); err == nil {
				snap.byIP[entry.Indicator] = append(snap.byIP[entry.Indicator], entry)
			}
		}
	}

	return snap
}

func (e *engineImpl) writeCache() error {
	data, err := json.Marshal(e.feeds)
	if err != nil {
		return err
	}
	return e.fs.WriteFile(feedCacheName, data)
}

func (e *engineImpl) readCache() (feeds map[string][]Entry, err error) {
	data, err := e.fs.ReadFile(feedCacheName)
	if err != nil {
		return
	}

	feeds = make(map[string][]Entry)
	err = json.Unmarshal(data, &feeds)
	return
}

func toFeedMatch(e Entry) waf.FeedMatch {
	return waf.FeedMatch{
		Indicator: e.Indicator,
		FeedID:    e.FeedID,
		FeedType:  e.FeedType,
		Severity:  e.Severity,
	}
}
