package waf

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server is the top level interface to the WAF engine. One EvalRequest call
// is made per inbound HTTP request; evaluations are independent and share
// only the snapshot-backed stores.
type Server interface {
	EvalRequest(ctx context.Context, req HTTPRequest) Verdict
	Health() *HealthState
}

type serverImpl struct {
	logger        zerolog.Logger
	config        EngineConfig
	gate          GeoGate
	threatIntel   ThreatIntelEngine
	ruleEngine    RuleEngine
	scorer        AnomalyScorer
	sink          VerdictSink
	resultsLogger ResultsLogger
	bodyCapturer  BodyCapturer
	clock         Clock
	health        *HealthState
}

// NewServer creates the decision engine. All collaborators are injected so
// tests can run the pipeline against fakes with an injected clock.
func NewServer(logger zerolog.Logger, config EngineConfig, gate GeoGate, ti ThreatIntelEngine, re RuleEngine, scorer AnomalyScorer, sink VerdictSink, rl ResultsLogger, bc BodyCapturer, clock Clock, health *HealthState) (Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &serverImpl{
		logger:        logger,
		config:        config,
		gate:          gate,
		threatIntel:   ti,
		ruleEngine:    re,
		scorer:        scorer,
		sink:          sink,
		resultsLogger: rl,
		bodyCapturer:  bc,
		clock:         clock,
		health:        health,
	}, nil
}

func (s *serverImpl) Health() *HealthState { return s.health }

// EvalRequest runs the fixed stage order geo -> threat intel -> rules ->
// anomaly and emits exactly one verdict. Stages after the first denying
// stage are skipped. Nothing on this path blocks on an external call; all
// reads are against local snapshots, and the verdict handoff to the
// aggregator is fire-and-forget.
func (s *serverImpl) EvalRequest(ctx context.Context, req HTTPRequest) (verdict Verdict) {
	txid := uuid.NewString()
	logger := s.logger.With().Str("txid", txid).Logger()

	start := s.clock.Now()
	verdict.TransactionID = txid

	defer func() {
		verdict.ResponseTime = s.clock.Now().Sub(start)
		s.sink.Offer(verdict, req.RemoteAddr(), start)
		logger.Info().
			Bool("blocked", verdict.IsBlocked).
			Str("reason", string(verdict.Reason)).
			Float64("score", verdict.Score).
			Dur("timeTaken", verdict.ResponseTime).
			Msg("WAF completed request")
	}()

	logger.Debug().Str("uri", req.URI()).Str("clientIP", req.RemoteAddr()).Msg("WAF got request")

	body, truncated, err := s.bodyCapturer.Capture(req.BodyReader())
	if err != nil {
		// A half-read body is scanned as far as it got, and is ordinary
		// non-matching input beyond that.
		logger.Warn().Err(err).Msg("Error while reading request body")
	}

	rc := NewRequestContext(req, body, truncated, start)

	// Geo/IP gate.
	gateResult := s.gate.Evaluate(ctx, rc.IPAddress)
	if gateResult.Degraded {
		verdict.Degraded = true
		s.health.SetGeoDegraded(true)
		s.resultsLogger.LookupDegraded(rc, "geo")
	} else {
		s.health.SetGeoDegraded(false)
	}
	if gateResult.Deny {
		verdict.IsBlocked = true
		verdict.Reason = gateResult.Reason
		s.resultsLogger.GeoBlocked(rc, gateResult)
		return
	}

	// Threat intel correlation.
	matches := s.threatIntel.Check(rc.IPAddress, start)
	if len(matches) > 0 {
		maxSeverity := 0
		for _, m := range matches {
			if m.Severity > maxSeverity {
				maxSeverity = m.Severity
			}
		}

		verdict.Score = maxFloat(verdict.Score, severityScore(maxSeverity))

		if maxSeverity >= s.config.ThreatSeverityBlockThreshold {
			verdict.IsBlocked = true
			verdict.Reason = ReasonThreatIntel
			s.resultsLogger.ThreatMatched(rc, matches)
			return
		}
	}

	// Rule evaluation. Log-action matches are reported but do not stop the
	// pipeline.
	ruleMatch := s.ruleEngine.Eval(logger, rc)
	for _, lm := range ruleMatch.LogMatches {
		s.resultsLogger.RuleTriggered(rc, lm.RuleID, lm.AttackType, ActionLog)
	}
	if ruleMatch.Block {
		verdict.IsBlocked = true
		verdict.Reason = ReasonRule
		verdict.MatchedRuleID = ruleMatch.RuleID
		verdict.AttackType = ruleMatch.AttackType
		s.resultsLogger.RuleTriggered(rc, ruleMatch.RuleID, ruleMatch.AttackType, ruleMatch.Action)
		return
	}

	// Anomaly scoring. The score is recorded on the verdict regardless of
	// the block outcome.
	score := s.scorer.Score(rc)
	verdict.Score = maxFloat(verdict.Score, score)
	if score >= s.config.EffectiveAnomalyThreshold() {
		verdict.IsBlocked = true
		verdict.Reason = ReasonAnomaly
		verdict.AttackType = AttackOther
		s.resultsLogger.AnomalyBlocked(rc, score)
		return
	}

	return
}

// severityScore maps a feed severity (1..5) into the verdict score range.
func severityScore(severity int) float64 {
	if severity < 0 {
		return 0
	}
	if severity > 5 {
		return 1
	}
	return float64(severity) / 5
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
