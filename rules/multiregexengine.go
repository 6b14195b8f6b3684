package rules

// MultiRegexEnginePattern is a pattern, with an ID, to be matched by a
// MultiRegexEngine.
type MultiRegexEnginePattern struct {
	ID   int
	Expr string
}

// MultiRegexEngineMatch is a match returned by a MultiRegexEngine scan. The
// engine may run in a prefilter mode, so matches are candidates that the
// caller verifies with an exact regex engine.
type MultiRegexEngineMatch struct {
	ID int
}

// MultiRegexEngine scans inputs for many patterns simultaneously.
type MultiRegexEngine interface {
	// Scan returns the IDs of all patterns the input possibly matches.
	// Safe for concurrent use.
	Scan(input []byte) (matches []MultiRegexEngineMatch, err error)

	// Close frees resources the engine holds.
	Close()
}

// MultiRegexEngineFactory creates a MultiRegexEngine from a pattern set.
type MultiRegexEngineFactory interface {
	NewMultiRegexEngine(mm []MultiRegexEnginePattern) (m MultiRegexEngine, err error)
}
