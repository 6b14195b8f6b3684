package waf

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// GateResult is the Geo/IP gate's decision for one source address.
type GateResult struct {
	Deny        bool
	Reason      BlockReason
	CountryCode string

	// Degraded is set when the country lookup failed or timed out and the
	// gate failed open.
	Degraded bool
}

// GeoGate decides allow/deny from the source IP's country and the operator
// blocklist/allowlist.
type GeoGate interface {
	Evaluate(ctx context.Context, ip string) GateResult
}

// FeedMatch is one threat feed entry that matched a request's source IP.
type FeedMatch struct {
	Indicator string
	FeedID    string
	FeedType  string
	Severity  int
}

// ThreatIntelEngine checks indicators against the most recently committed
// feed snapshot. Expired entries never match.
type ThreatIntelEngine interface {
	Check(ip string, now time.Time) []FeedMatch
}

// LogMatch is a rule with action Log that matched during evaluation.
type LogMatch struct {
	RuleID     int
	AttackType AttackType
}

// RuleMatch is the outcome of evaluating the enabled rule set against one
// request. When Block is set, RuleID is the lowest-ID blocking rule that
// matched.
type RuleMatch struct {
	Block      bool
	RuleID     int
	AttackType AttackType
	Action     RuleAction
	LogMatches []LogMatch
}

// RuleEngine evaluates the current rule snapshot against one request.
type RuleEngine interface {
	Eval(logger zerolog.Logger, rc *RequestContext) RuleMatch
}

// AnomalyScorer produces a risk score in [0,1] from request features. The
// score is a deterministic function of the request plus the source IP's
// recent request window.
type AnomalyScorer interface {
	Score(rc *RequestContext) float64
}

// VerdictSink consumes verdicts off the request's critical path. Offer never
// blocks; it reports false when the verdict was dropped for aggregation.
type VerdictSink interface {
	Offer(v Verdict, ip string, at time.Time) bool
}

// BodyCapturer reads at most the configured number of body bytes for
// scanning.
type BodyCapturer interface {
	Capture(r io.Reader) (body string, truncated bool, err error)
}

// ResultsLogger emits the customer-facing record of why a request was
// flagged.
type ResultsLogger interface {
	RuleTriggered(rc *RequestContext, ruleID int, attackType AttackType, action RuleAction)
	GeoBlocked(rc *RequestContext, result GateResult)
	ThreatMatched(rc *RequestContext, matches []FeedMatch)
	AnomalyBlocked(rc *RequestContext, score float64)
	LookupDegraded(rc *RequestContext, stage string)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock is the Clock used outside of tests.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }
