// Package hyperscan implements the rules.MultiRegexEngine interface on
// Hyperscan, plus a pure-Go engine for builds and tests without the shared
// library.
package hyperscan

import (
	"sync"

	hs "github.com/flier/gohs/hyperscan"

	"warden/rules"
)

// EngineFactory creates Hyperscan-backed multi-regex engines.
type EngineFactory struct {
}

// Engine is a compiled Hyperscan database over one pattern set.
type Engine struct {
	db hs.BlockDatabase

	// Hyperscan scratch space is not safe for concurrent scans.
	mu      sync.Mutex
	scratch *hs.Scratch
}

// NewMultiRegexEngineFactory creates a rules.MultiRegexEngineFactory backed
// by Hyperscan.
func NewMultiRegexEngineFactory() rules.MultiRegexEngineFactory {
	return &EngineFactory{}
}

// NewMultiRegexEngine compiles the pattern set into a Hyperscan block
// database.
func (f *EngineFactory) NewMultiRegexEngine(mm []rules.MultiRegexEnginePattern) (m rules.MultiRegexEngine, err error) {
	h := &Engine{}

	patterns := []*hs.Pattern{}
	for _, p := range mm {
		hp := hs.NewPattern(p.Expr, 0)
		hp.Id = p.ID

		// SingleMatch records each pattern at most once per scan.
		// PrefilterMode gives broader pattern compatibility at the cost
		// of possible false positives, so scan results must be verified
		// with an exact regex engine.
		hp.Flags = hs.SingleMatch | hs.PrefilterMode | hs.Caseless

		patterns = append(patterns, hp)
	}

	h.db, err = hs.NewBlockDatabase(patterns...)
	if err != nil {
		return
	}

	h.scratch, err = hs.NewScratch(h.db)
	if err != nil {
		h.db.Close()
		return
	}

	m = h
	return
}

// Scan finds the candidate pattern IDs for the given input.
func (h *Engine) Scan(input []byte) (matches []rules.MultiRegexEngineMatch, err error) {
	matches = []rules.MultiRegexEngineMatch{}
	handler := func(id uint, from, to uint64, flags uint, context interface{}) error {
		matches = append(matches, rules.MultiRegexEngineMatch{ID: int(id)})
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	err = h.db.Scan(input, h.scratch, handler, nil)
	return
}

// Close frees the database and scratch space owned by this engine.
func (h *Engine) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.scratch != nil {
		h.scratch.Free()
		h.scratch = nil
	}
	if h.db != nil {
		h.db.Close()
		h.db = nil
	}
}
