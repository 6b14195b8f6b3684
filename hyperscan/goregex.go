package hyperscan

import (
	"bytes"
	"fmt"
	"regexp"

	"rsc.io/binaryregexp"

	"warden/rules"
)

// goRegexEngineFactory creates multi-regex engines that loop over compiled Go
// regexes. Used when the Hyperscan shared library is not available, and in
// tests.
type goRegexEngineFactory struct {
}

type goRegexEngine struct {
	patterns []goRegexPattern
}

type goRegexPattern struct {
	id    int
	regex *goRegexFacade
}

// NewGoRegexEngineFactory creates a rules.MultiRegexEngineFactory on the Go
// regexp engines. Unlike the Hyperscan engine it returns exact matches, which
// is simply a prefilter with no false positives.
func NewGoRegexEngineFactory() rules.MultiRegexEngineFactory {
	return &goRegexEngineFactory{}
}

func (f *goRegexEngineFactory) NewMultiRegexEngine(mm []rules.MultiRegexEnginePattern) (m rules.MultiRegexEngine, err error) {
	e := &goRegexEngine{}

	for _, p := range mm {
		var g *goRegexFacade
		g, err = compileRegexFacade("(?i)(?:" + p.Expr + ")")
		if err != nil {
			return
		}

		e.patterns = append(e.patterns, goRegexPattern{id: p.ID, regex: g})
	}

	m = e
	return
}

func (e *goRegexEngine) Scan(input []byte) (matches []rules.MultiRegexEngineMatch, err error) {
	matches = []rules.MultiRegexEngineMatch{}
	for _, p := range e.patterns {
		if p.regex.Match(input) {
			matches = append(matches, rules.MultiRegexEngineMatch{ID: p.id})
		}
	}
	return
}

func (e *goRegexEngine) Close() {
}

// goRegexFacade fronts the built in Go regexp engine, falling back to Russ
// Cox's binaryregexp fork for patterns that search for binary content.
type goRegexFacade struct {
	goregexp    *regexp.Regexp
	goregexpBin *binaryregexp.Regexp
}

func compileRegexFacade(expr string) (g *goRegexFacade, err error) {
	hasHexEscapedBytes := containsHexEscapedBytes(expr)

	// Render non-printable characters in \x00 form first.
	var b bytes.Buffer
	for i := 0; i < len(expr); i++ {
		// ' ' is the lowest and '~' the highest printable ASCII char.
		if ' ' <= expr[i] && expr[i] <= '~' {
			b.WriteByte(expr[i])
		} else {
			fmt.Fprintf(&b, "\\x%02X", expr[i])
			hasHexEscapedBytes = true
		}
	}
	expr = b.String()

	if !hasHexEscapedBytes {
		var r *regexp.Regexp
		r, err = regexp.Compile(expr)
		if err != nil {
			err = fmt.Errorf("failed to compile Go regexp pattern %v: %v", expr, err)
			return
		}

		g = &goRegexFacade{goregexp: r}
		return
	}

	var r *binaryregexp.Regexp
	r, err = binaryregexp.Compile(expr)
	if err != nil {
		err = fmt.Errorf("failed to compile binary regexp pattern %v: %v", expr, err)
		return
	}

	g = &goRegexFacade{goregexpBin: r}
	return
}

func (g *goRegexFacade) Match(b []byte) bool {
	if g.goregexp != nil {
		return g.goregexp.Match(b)
	}
	return g.goregexpBin.Match(b)
}

var hexEscapeRegexp = regexp.MustCompile(`((^|[^\\])(\\\\)*)\\x([0-9a-fA-F]{2})`)

func containsHexEscapedBytes(s string) bool {
	return hexEscapeRegexp.MatchString(s)
}
