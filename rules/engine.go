package rules

import (
	"github.com/rs/zerolog"

	"warden/waf"
)

type engineImpl struct {
	store Store
}

// NewEngine creates the waf.RuleEngine that evaluates the store's current
// snapshot with first-match-wins semantics.
func NewEngine(store Store) waf.RuleEngine {
	return &engineImpl{store: store}
}

// Eval scans the request against the enabled rules in ascending rule ID
// order. The first matching rule whose action blocks decides the outcome;
// rules with action Log that match are collected and evaluation continues.
func (e *engineImpl) Eval(logger zerolog.Logger, rc *waf.RequestContext) (result waf.RuleMatch) {
	snapshot := e.store.Snapshot()

	// Per location: the extracted fields and the prefiltered candidate
	// rule IDs, computed lazily since many requests touch few locations.
	fields := make(map[waf.MatchLocation][]string)
	candidates := make(map[waf.MatchLocation]map[int]bool)

	for _, cr := range snapshot.rules {
		loc := cr.MatchLocation

		ff, ok := fields[loc]
		if !ok {
			ff = extractFields(rc, loc)
			fields[loc] = ff
			candidates[loc] = e.prefilter(logger, snapshot.locations[loc], ff)
		}

		if len(ff) == 0 {
			continue
		}

		if cc := candidates[loc]; cc != nil && !cc[cr.ID] {
			continue
		}

		if !cr.matchAny(ff) {
			continue
		}

		logger.Debug().Int("ruleID", cr.ID).Str("action", string(cr.Action)).Msg("Rule matched")

		if cr.Action.Blocks() {
			result.Block = true
			result.RuleID = cr.ID
			result.AttackType = cr.AttackType
			result.Action = cr.Action
			return
		}

		result.LogMatches = append(result.LogMatches, waf.LogMatch{RuleID: cr.ID, AttackType: cr.AttackType})
	}

	return
}

// prefilter scans the location's fields through the multi-regex engine and
// returns the candidate rule ID set. A nil result means no prefilter could
// run and every rule must be verified.
func (e *engineImpl) prefilter(logger zerolog.Logger, ls *locationSet, fields []string) map[int]bool {
	if ls == nil || ls.prefilter == nil || len(fields) == 0 {
		return nil
	}

	ids := make(map[int]bool)
	for _, f := range fields {
		matches, err := ls.prefilter.Scan([]byte(f))
		if err != nil {
			logger.Warn().Err(err).Msg("Prefilter scan failed, verifying all rules")
			return nil
		}

		for _, m := range matches {
			ids[m.ID] = true
		}
	}

	return ids
}
