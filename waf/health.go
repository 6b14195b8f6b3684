package waf

import "sync/atomic"

// HealthState tracks whether parts of the engine are running degraded, so
// the reporting surface never shows a false "protected" status.
type HealthState struct {
	geoDegraded  atomic.Bool
	feedDegraded atomic.Bool
}

// SetGeoDegraded records whether the most recent geo lookup failed open.
func (h *HealthState) SetGeoDegraded(v bool) { h.geoDegraded.Store(v) }

// GeoDegraded reports whether geo lookups are failing.
func (h *HealthState) GeoDegraded() bool { return h.geoDegraded.Load() }

// SetFeedDegraded records whether the most recent threat feed refresh failed.
func (h *HealthState) SetFeedDegraded(v bool) { h.feedDegraded.Store(v) }

// FeedDegraded reports whether threat feed refreshes are failing.
func (h *HealthState) FeedDegraded() bool { return h.feedDegraded.Load() }

// Degraded reports whether any part of the engine is degraded.
func (h *HealthState) Degraded() bool {
	return h.geoDegraded.Load() || h.feedDegraded.Load()
}
