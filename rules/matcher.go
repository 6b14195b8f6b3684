package rules

import (
	"regexp"

	"warden/waf"
)

type compiledRule struct {
	waf.Rule
	regex *regexp.Regexp
}

// compilePattern wraps a rule pattern for case-insensitive matching. RE2's
// linear-time execution bounds the worst-case scan cost of any pattern that
// compiles, so there is no rule-supplied input that can stall evaluation.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)(?:" + pattern + ")")
}

func compileRule(r waf.Rule) (cr compiledRule, err error) {
	regex, err := compilePattern(r.Pattern)
	if err != nil {
		return
	}

	cr = compiledRule{Rule: r, regex: regex}
	return
}

// extractFields returns the request fields that rules at the given location
// scan. Absent parts of the request yield no fields, which is simply
// no-match.
func extractFields(rc *waf.RequestContext, loc waf.MatchLocation) (fields []string) {
	switch loc {
	case waf.LocationHeader:
		for _, vv := range rc.Headers {
			fields = append(fields, vv...)
		}
	case waf.LocationBody:
		if rc.Body != "" {
			fields = append(fields, rc.Body)
		}
	case waf.LocationQuery:
		for _, vv := range rc.Query {
			fields = append(fields, vv...)
		}
		// The raw query string is scanned too, so patterns spanning
		// multiple parameters still hit.
		if rc.RawQuery != "" {
			fields = append(fields, rc.RawQuery)
		}
	case waf.LocationPath:
		if rc.Path != "" {
			fields = append(fields, rc.Path)
		}
	case waf.LocationCookie:
		for _, v := range rc.Cookies {
			fields = append(fields, v)
		}
	}

	return
}

// Match reports whether a single rule matches the request: its pattern
// against every extracted field for its location, true if any field matches.
// Stateless and side effect free.
func Match(r waf.Rule, rc *waf.RequestContext) (matched bool, err error) {
	cr, err := compileRule(r)
	if err != nil {
		return
	}

	return cr.matchAny(extractFields(rc, r.MatchLocation)), nil
}

func (cr compiledRule) matchAny(fields []string) bool {
	for _, f := range fields {
		if cr.regex.MatchString(f) {
			return true
		}
	}
	return false
}
