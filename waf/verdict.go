package waf

import "time"

// BlockReason identifies the pipeline stage that decided to block a request.
type BlockReason string

// Block reasons. Operator is distinct from Geo so that audit trails can tell
// a manual IP block apart from automated geo blocking.
const (
	ReasonNone        BlockReason = ""
	ReasonGeo         BlockReason = "Geo"
	ReasonThreatIntel BlockReason = "ThreatIntel"
	ReasonRule        BlockReason = "Rule"
	ReasonAnomaly     BlockReason = "Anomaly"
	ReasonOperator    BlockReason = "Operator"
)

// Verdict is the engine's final decision for one request, plus the evidence
// that supports it. Exactly one verdict is produced per evaluated request and
// it is immutable once returned.
type Verdict struct {
	TransactionID string      `json:"transactionId"`
	IsBlocked     bool        `json:"isBlocked"`
	Reason        BlockReason `json:"reason,omitempty"`
	AttackType    AttackType  `json:"attackType,omitempty"`
	MatchedRuleID int         `json:"matchedRuleId,omitempty"`

	// Score is the highest anomaly/threat score observed, also on allowed
	// requests, so thresholds can be tuned from real traffic.
	Score float64 `json:"score"`

	// Degraded is set when an external lookup failed open during this
	// evaluation.
	Degraded bool `json:"degraded,omitempty"`

	ResponseTime time.Duration `json:"responseTimeMs"`
}
