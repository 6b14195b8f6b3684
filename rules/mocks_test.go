package rules

import (
	"errors"
	"regexp"
)

// mockRegexEngineFactory backs snapshots with plain Go regexes, standing in
// for the Hyperscan prefilter.
type mockRegexEngineFactory struct {
	// failCompile makes the factory error, forcing snapshots to run
	// without a prefilter.
	failCompile bool

	// scanErr is returned by every Scan of engines this factory made.
	scanErr error

	scans *int
}

type mockRegexEngine struct {
	patterns map[int]*regexp.Regexp
	scanErr  error
	scans    *int
}

func (f *mockRegexEngineFactory) NewMultiRegexEngine(mm []MultiRegexEnginePattern) (MultiRegexEngine, error) {
	if f.failCompile {
		return nil, errors.New("prefilter compile failed")
	}

	e := &mockRegexEngine{patterns: make(map[int]*regexp.Regexp), scanErr: f.scanErr, scans: f.scans}
	for _, p := range mm {
		r, err := regexp.Compile("(?i)(?:" + p.Expr + ")")
		if err != nil {
			return nil, err
		}
		e.patterns[p.ID] = r
	}

	return e, nil
}

func (e *mockRegexEngine) Scan(input []byte) (matches []MultiRegexEngineMatch, err error) {
	if e.scans != nil {
		*e.scans++
	}
	if e.scanErr != nil {
		err = e.scanErr
		return
	}

	for id, r := range e.patterns {
		if r.Match(input) {
			matches = append(matches, MultiRegexEngineMatch{ID: id})
		}
	}
	return
}

func (e *mockRegexEngine) Close() {}
