package waf

import (
	"fmt"
	"time"
)

// AttackType classifies the kind of attack a rule detects.
type AttackType string

// Attack types known to the engine.
const (
	AttackSQLInjection  AttackType = "SqlInjection"
	AttackXSS           AttackType = "Xss"
	AttackPathTraversal AttackType = "PathTraversal"
	AttackCSRF          AttackType = "Csrf"
	AttackOther         AttackType = "Other"
)

// Valid tells whether this is a known attack type.
func (a AttackType) Valid() bool {
	switch a {
	case AttackSQLInjection, AttackXSS, AttackPathTraversal, AttackCSRF, AttackOther:
		return true
	}
	return false
}

// MatchLocation identifies the part of the request a rule's pattern is matched against.
type MatchLocation string

// Match locations known to the engine.
const (
	LocationHeader MatchLocation = "Header"
	LocationBody   MatchLocation = "Body"
	LocationQuery  MatchLocation = "Query"
	LocationPath   MatchLocation = "Path"
	LocationCookie MatchLocation = "Cookie"
)

// Valid tells whether this is a known match location.
func (l MatchLocation) Valid() bool {
	switch l {
	case LocationHeader, LocationBody, LocationQuery, LocationPath, LocationCookie:
		return true
	}
	return false
}

// RuleAction is what the engine does when a rule matches.
type RuleAction string

// Rule actions. Challenge is reserved for interactive verification and
// currently behaves like Block.
const (
	ActionBlock     RuleAction = "Block"
	ActionLog       RuleAction = "Log"
	ActionChallenge RuleAction = "Challenge"
)

// Valid tells whether this is a known rule action.
func (a RuleAction) Valid() bool {
	switch a {
	case ActionBlock, ActionLog, ActionChallenge:
		return true
	}
	return false
}

// Blocks tells whether a match on a rule with this action blocks the request.
func (a RuleAction) Blocks() bool {
	return a == ActionBlock || a == ActionChallenge
}

// Rule is a pattern based detector. The ID is immutable once the rule has
// been created. The pattern is a case-insensitive regex matched against every
// field extracted for the rule's match location.
type Rule struct {
	ID            int           `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Pattern       string        `json:"pattern" yaml:"pattern"`
	AttackType    AttackType    `json:"attackType" yaml:"attackType"`
	MatchLocation MatchLocation `json:"matchLocation" yaml:"matchLocation"`
	Action        RuleAction    `json:"action" yaml:"action"`
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	CreatedAt     time.Time     `json:"createdAt" yaml:"createdAt,omitempty"`
}

// Validate checks the rule's fields, not including pattern compilability,
// which the rule store checks with the actual regex engine.
func (r Rule) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("rule ID must be a positive integer, got %v", r.ID)
	}

	if r.Pattern == "" {
		return fmt.Errorf("rule %v has an empty pattern", r.ID)
	}

	if !r.AttackType.Valid() {
		return fmt.Errorf("rule %v has unknown attack type %q", r.ID, r.AttackType)
	}

	if !r.MatchLocation.Valid() {
		return fmt.Errorf("rule %v has unknown match location %q", r.ID, r.MatchLocation)
	}

	if !r.Action.Valid() {
		return fmt.Errorf("rule %v has unknown action %q", r.ID, r.Action)
	}

	return nil
}
