package logging

import (
	"bytes"
	"testing"
	"time"

	"warden/waf"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newCaptureLogger() (waf.ResultsLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	return NewZerologResultsLogger(logger), &buf
}

func testRequestContext() *waf.RequestContext {
	return &waf.RequestContext{
		IPAddress: "203.0.113.7",
		Method:    "GET",
		Path:      "/login",
		RawQuery:  "user=bob",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRuleTriggeredLogEntry(t *testing.T) {
	l, buf := newCaptureLogger()

	l.RuleTriggered(testRequestContext(), 1007, waf.AttackSQLInjection, waf.ActionBlock)

	out := buf.String()
	assert.Contains(t, out, `\"ruleId\": \"1007\"`)
	assert.Contains(t, out, "SqlInjection")
	assert.Contains(t, out, "Blocked")
	assert.Contains(t, out, "/login?user=bob")
	assert.Contains(t, out, "203.0.113.7")
}

func TestRuleTriggeredLogOnlyAction(t *testing.T) {
	l, buf := newCaptureLogger()

	l.RuleTriggered(testRequestContext(), 2, waf.AttackXSS, waf.ActionLog)

	assert.Contains(t, buf.String(), "Matched")
	assert.NotContains(t, buf.String(), "Blocked")
}

func TestGeoBlockedLogEntry(t *testing.T) {
	l, buf := newCaptureLogger()

	l.GeoBlocked(testRequestContext(), waf.GateResult{Deny: true, Reason: waf.ReasonGeo, CountryCode: "CN"})
	assert.Contains(t, buf.String(), "geographic policy (country CN)")

	buf.Reset()
	l.GeoBlocked(testRequestContext(), waf.GateResult{Deny: true, Reason: waf.ReasonOperator})
	assert.Contains(t, buf.String(), "IP policy")
}

func TestThreatMatchedLogEntry(t *testing.T) {
	l, buf := newCaptureLogger()

	l.ThreatMatched(testRequestContext(), []waf.FeedMatch{
		{Indicator: "203.0.113.7", FeedID: "feed-a", Severity: 3},
		{Indicator: "203.0.113.0/24", FeedID: "feed-b", Severity: 5},
	})

	out := buf.String()
	assert.Contains(t, out, "severity 5")
	assert.Contains(t, out, "feed-a, feed-b")
}

func TestAnomalyBlockedLogEntry(t *testing.T) {
	l, buf := newCaptureLogger()

	l.AnomalyBlocked(testRequestContext(), 0.85)

	assert.Contains(t, buf.String(), "Anomaly score 0.85")
}

func TestLookupDegradedLogEntry(t *testing.T) {
	l, buf := newCaptureLogger()

	l.LookupDegraded(testRequestContext(), "geo")

	out := buf.String()
	assert.Contains(t, out, "geo lookup failed")
	assert.Contains(t, out, "Allowed")
}
