package waf

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type mockHeaderPair struct {
	k string
	v string
}

func (h *mockHeaderPair) Key() string   { return h.k }
func (h *mockHeaderPair) Value() string { return h.v }

type mockHTTPRequest struct {
	method     string
	uri        string
	remoteAddr string
	headers    []HeaderPair
	body       string
}

func (r *mockHTTPRequest) Method() string { return r.method }
func (r *mockHTTPRequest) URI() string {
	if r.uri == "" {
		return "/"
	}
	return r.uri
}
func (r *mockHTTPRequest) RemoteAddr() string {
	if r.remoteAddr == "" {
		return "1.2.3.4"
	}
	return r.remoteAddr
}
func (r *mockHTTPRequest) Headers() []HeaderPair  { return r.headers }
func (r *mockHTTPRequest) BodyReader() io.Reader  { return strings.NewReader(r.body) }

type mockGeoGate struct {
	result GateResult
	calls  int
}

func (g *mockGeoGate) Evaluate(ctx context.Context, ip string) GateResult {
	g.calls++
	return g.result
}

type mockThreatIntel struct {
	matches []FeedMatch
	calls   int
}

func (t *mockThreatIntel) Check(ip string, now time.Time) []FeedMatch {
	t.calls++
	return t.matches
}

type mockRuleEngine struct {
	result RuleMatch
	calls  int
}

func (e *mockRuleEngine) Eval(logger zerolog.Logger, rc *RequestContext) RuleMatch {
	e.calls++
	return e.result
}

type mockScorer struct {
	score float64
	calls int
}

func (s *mockScorer) Score(rc *RequestContext) float64 {
	s.calls++
	return s.score
}

type mockSink struct {
	verdicts []Verdict
	ips      []string
}

func (s *mockSink) Offer(v Verdict, ip string, at time.Time) bool {
	s.verdicts = append(s.verdicts, v)
	s.ips = append(s.ips, ip)
	return true
}

type mockBodyCapturer struct{}

func (c *mockBodyCapturer) Capture(r io.Reader) (string, bool, error) {
	var b strings.Builder
	io.Copy(&b, r)
	return b.String(), false, nil
}

type mockResultsLogger struct {
	ruleTriggered  []int
	geoBlocked     int
	threatMatched  int
	anomalyBlocked int
	degraded       []string
}

func (l *mockResultsLogger) RuleTriggered(rc *RequestContext, ruleID int, attackType AttackType, action RuleAction) {
	l.ruleTriggered = append(l.ruleTriggered, ruleID)
}
func (l *mockResultsLogger) GeoBlocked(rc *RequestContext, result GateResult)     { l.geoBlocked++ }
func (l *mockResultsLogger) ThreatMatched(rc *RequestContext, matches []FeedMatch) { l.threatMatched++ }
func (l *mockResultsLogger) AnomalyBlocked(rc *RequestContext, score float64)      { l.anomalyBlocked++ }
func (l *mockResultsLogger) LookupDegraded(rc *RequestContext, stage string) {
	l.degraded = append(l.degraded, stage)
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }
