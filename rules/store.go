// Package rules holds the rule store and the rule evaluation engine. The
// store hands out immutable compiled snapshots; updates build a new snapshot
// and swap it in atomically, so evaluations already holding a snapshot are
// never affected by a concurrent upsert or enable/disable.
package rules

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"warden/waf"
)

// Store holds the rule set.
type Store interface {
	// Snapshot returns the current compiled view of the enabled rules,
	// ordered by ascending rule ID.
	Snapshot() *Snapshot

	// Upsert validates and adds or replaces a rule. The ID and creation
	// time of an existing rule are immutable.
	Upsert(r waf.Rule) error

	// SetEnabled toggles a rule. Evaluations started before the call
	// returns may still use the previous snapshot.
	SetEnabled(id int, enabled bool) error

	// List returns all rules, enabled or not, ordered by ascending ID.
	List() []waf.Rule

	// Get returns one rule by ID.
	Get(id int) (waf.Rule, error)
}

// Snapshot is an immutable point-in-time view of the enabled rules, with the
// per-location prefilter databases already compiled.
type Snapshot struct {
	rules     []compiledRule
	locations map[waf.MatchLocation]*locationSet
}

type locationSet struct {
	// prefilter narrows the candidate set before exact verification. Nil
	// when the multi-regex engine could not be built, in which case every
	// rule at this location is verified.
	prefilter MultiRegexEngine
	rules     []compiledRule
}

// Rules returns the enabled rules in evaluation order.
func (s *Snapshot) Rules() []waf.Rule {
	rr := make([]waf.Rule, len(s.rules))
	for i, cr := range s.rules {
		rr[i] = cr.Rule
	}
	return rr
}

type storeImpl struct {
	logger  zerolog.Logger
	factory MultiRegexEngineFactory

	mu      sync.Mutex // serializes writers
	rules   map[int]waf.Rule
	current atomic.Value // *Snapshot
}

// NewStore creates an empty rule store. The factory builds the per-location
// prefilter engines for each snapshot.
func NewStore(logger zerolog.Logger, factory MultiRegexEngineFactory) Store {
	s := &storeImpl{
		logger:  logger,
		factory: factory,
		rules:   make(map[int]waf.Rule),
	}
	s.current.Store(&Snapshot{locations: make(map[waf.MatchLocation]*locationSet)})
	return s
}

func (s *storeImpl) Snapshot() *Snapshot {
	return s.current.Load().(*Snapshot)
}

func (s *storeImpl) Upsert(r waf.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	// Reject bad patterns before activation so they never reach
	// evaluation.
	if _, err := compilePattern(r.Pattern); err != nil {
		return fmt.Errorf("%w: rule %v: %v", waf.ErrInvalidPattern, r.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rules[r.ID]; ok {
		r.CreatedAt = existing.CreatedAt
	} else if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	s.rules[r.ID] = r
	s.rebuildLocked()

	s.logger.Info().Int("ruleID", r.ID).Str("name", r.Name).Bool("enabled", r.Enabled).Msg("Rule upserted")
	return nil
}

func (s *storeImpl) SetEnabled(id int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: %v", waf.ErrUnknownRule, id)
	}

	if r.Enabled == enabled {
		return nil
	}

	r.Enabled = enabled
	s.rules[id] = r
	s.rebuildLocked()

	s.logger.Info().Int("ruleID", id).Bool("enabled", enabled).Msg("Rule toggled")
	return nil
}

func (s *storeImpl) List() []waf.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	rr := make([]waf.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		rr = append(rr, r)
	}

	sort.Slice(rr, func(i, j int) bool { return rr[i].ID < rr[j].ID })
	return rr
}

func (s *storeImpl) Get(id int) (waf.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return waf.Rule{}, fmt.Errorf("%w: %v", waf.ErrUnknownRule, id)
	}
	return r, nil
}

// rebuildLocked compiles a fresh snapshot from the current rule set and swaps
// it in. Old snapshots stay valid for evaluations still holding them.
func (s *storeImpl) rebuildLocked() {
	snapshot := &Snapshot{locations: make(map[waf.MatchLocation]*locationSet)}

	ids := make([]int, 0, len(s.rules))
	for id := range s.rules {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		r := s.rules[id]
		if !r.Enabled {
			continue
		}

		cr, err := compileRule(r)
		if err != nil {
			// Upsert validation makes this unreachable; skip rather
			// than fail the whole snapshot if it ever happens.
			s.logger.Error().Err(err).Int("ruleID", r.ID).Msg("Skipping rule with uncompilable pattern")
			continue
		}

		snapshot.rules = append(snapshot.rules, cr)

		ls := snapshot.locations[r.MatchLocation]
		if ls == nil {
			ls = &locationSet{}
			snapshot.locations[r.MatchLocation] = ls
		}
		ls.rules = append(ls.rules, cr)
	}

	for loc, ls := range snapshot.locations {
		patterns := make([]MultiRegexEnginePattern, len(ls.rules))
		for i, cr := range ls.rules {
			patterns[i] = MultiRegexEnginePattern{ID: cr.ID, Expr: cr.Pattern}
		}

		engine, err := s.factory.NewMultiRegexEngine(patterns)
		if err != nil {
			// Run without a prefilter for this location. Exact
			// verification still covers every rule.
			s.logger.Warn().Err(err).Str("location", string(loc)).Msg("Prefilter engine unavailable, falling back to full verification")
			continue
		}

		ls.prefilter = engine
	}

	s.current.Store(snapshot)
}
