package logging

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"warden/waf"

	"github.com/rs/zerolog"
)

// NewZerologResultsLogger creates a results logger that creates log messages
// like the ones we want to send to the customer, but just outputs them to
// Zerolog.
func NewZerologResultsLogger(logger zerolog.Logger) waf.ResultsLogger {
	return &zerologResultsLogger{logger: logger}
}

type zerologResultsLogger struct {
	logger zerolog.Logger
}

type firewallLogEntry struct {
	ClientIP   string                  `json:"clientIp"`
	RequestURI string                  `json:"requestUri"`
	RuleID     string                  `json:"ruleId,omitempty"`
	AttackType string                  `json:"attackType,omitempty"`
	Message    string                  `json:"message"`
	Action     string                  `json:"action"`
	Details    firewallLogDetailsEntry `json:"details"`
}

type firewallLogDetailsEntry struct {
	Message string `json:"message,omitempty"`
}

func (l *zerologResultsLogger) RuleTriggered(rc *waf.RequestContext, ruleID int, attackType waf.AttackType, action waf.RuleAction) {
	actionStr := "Matched"
	if action.Blocks() {
		actionStr = "Blocked"
	}

	l.emit(&firewallLogEntry{
		ClientIP:   rc.IPAddress,
		RequestURI: rc.URI(),
		RuleID:     strconv.Itoa(ruleID),
		AttackType: string(attackType),
		Message:    fmt.Sprintf("Firewall rule %d matched", ruleID),
		Action:     actionStr,
	})
}

func (l *zerologResultsLogger) GeoBlocked(rc *waf.RequestContext, result waf.GateResult) {
	msg := "Request blocked by IP policy"
	if result.Reason == waf.ReasonGeo {
		msg = fmt.Sprintf("Request blocked by geographic policy (country %s)", result.CountryCode)
	}

	l.emit(&firewallLogEntry{
		ClientIP:   rc.IPAddress,
		RequestURI: rc.URI(),
		Message:    msg,
		Action:     "Blocked",
	})
}

func (l *zerologResultsLogger) ThreatMatched(rc *waf.RequestContext, matches []waf.FeedMatch) {
	feeds := make([]string, 0, len(matches))
	maxSeverity := 0
	for _, m := range matches {
		feeds = append(feeds, m.FeedID)
		if m.Severity > maxSeverity {
			maxSeverity = m.Severity
		}
	}

	l.emit(&firewallLogEntry{
		ClientIP:   rc.IPAddress,
		RequestURI: rc.URI(),
		Message:    fmt.Sprintf("Source IP matched threat intelligence (severity %d)", maxSeverity),
		Action:     "Blocked",
		Details: firewallLogDetailsEntry{
			Message: "Feeds: " + strings.Join(feeds, ", "),
		},
	})
}

func (l *zerologResultsLogger) AnomalyBlocked(rc *waf.RequestContext, score float64) {
	l.emit(&firewallLogEntry{
		ClientIP:   rc.IPAddress,
		RequestURI: rc.URI(),
		Message:    fmt.Sprintf("Anomaly score %.2f exceeded the configured threshold", score),
		Action:     "Blocked",
	})
}

func (l *zerologResultsLogger) LookupDegraded(rc *waf.RequestContext, stage string) {
	l.emit(&firewallLogEntry{
		ClientIP:   rc.IPAddress,
		RequestURI: rc.URI(),
		Message:    fmt.Sprintf("The %s lookup failed and the request was evaluated without it", stage),
		Action:     "Allowed",
	})
}

func (l *zerologResultsLogger) emit(c *firewallLogEntry) {
	bb, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
	}

	l.logger.Info().Msgf("Customer facing log:\n%s\n", bb)
}
