// Package anomaly produces a continuous risk score from request features.
// The scorer is a deterministic, explainable heuristic: the same request
// with the same per-IP window state always scores the same, so blocking
// decisions are reproducible and testable.
package anomaly

import (
	"math"
	"strings"

	"warden/waf"
)

// Feature weights. They sum to 1, so the score stays within [0,1].
const (
	weightRate    = 0.30
	weightTokens  = 0.25
	weightEntropy = 0.15
	weightBody    = 0.10
	weightParams  = 0.10
	weightHeaders = 0.10
)

// Feature normalization pivots.
const (
	// ratePivot is the per-window request count that saturates the rate
	// feature.
	ratePivot = 120

	// entropyFloor/entropyCeil bound the average header value entropy, in
	// bits per byte, mapped onto [0,1]. High entropy values suggest
	// encoded or compressed payloads smuggled through headers.
	entropyFloor = 4.0
	entropyCeil  = 6.0

	bodyPivot   = 64 * 1024
	paramsPivot = 30

	// Requests carrying fewer than sparseHeaders headers look like crude
	// scripts; more than crowdedHeaders looks like header stuffing.
	sparseHeaders  = 3
	crowdedHeaders = 40
	headersCeil    = 80
)

// defaultSuspiciousTokens are matched, lower-cased, against path, query and
// body.
var defaultSuspiciousTokens = []string{
	"union select",
	"' or 1=1",
	"<script",
	"../",
	"..\\",
	"/etc/passwd",
	"xp_cmdshell",
	"sleep(",
	"waitfor delay",
	"base64,",
}

// Scorer implements waf.AnomalyScorer.
type Scorer struct {
	window *RateWindow
	tokens []string
}

// NewScorer creates a scorer over the given per-IP window. A nil token list
// uses the built in set.
func NewScorer(window *RateWindow, tokens []string) *Scorer {
	if tokens == nil {
		tokens = defaultSuspiciousTokens
	}

	lowered := make([]string, len(tokens))
	for i, tok := range tokens {
		lowered[i] = strings.ToLower(tok)
	}

	return &Scorer{window: window, tokens: lowered}
}

// Score returns the risk score in [0,1]. It records the request in the
// per-IP window, so the rate feature is monotone non-decreasing in the
// request rate from one IP, all else equal.
func (s *Scorer) Score(rc *waf.RequestContext) float64 {
	rate := s.window.Observe(rc.IPAddress, rc.Timestamp)

	score := weightRate*clamp01(float64(rate)/ratePivot) +
		weightTokens*s.tokenFeature(rc) +
		weightEntropy*entropyFeature(rc) +
		weightBody*clamp01(float64(len(rc.Body))/bodyPivot) +
		weightParams*paramsFeature(rc) +
		weightHeaders*headersFeature(rc)

	return clamp01(score)
}

func (s *Scorer) tokenFeature(rc *waf.RequestContext) float64 {
	haystack := strings.ToLower(rc.Path + "\n" + rc.RawQuery + "\n" + rc.Body)
	for _, tok := range s.tokens {
		if strings.Contains(haystack, tok) {
			return 1
		}
	}
	return 0
}

func entropyFeature(rc *waf.RequestContext) float64 {
	var total float64
	var n int

	for _, vv := range rc.Headers {
		for _, v := range vv {
			if len(v) < 8 {
				// Too short to estimate anything.
				continue
			}
			total += shannonEntropy(v)
			n++
		}
	}

	if n == 0 {
		return 0
	}

	avg := total / float64(n)
	return clamp01((avg - entropyFloor) / (entropyCeil - entropyFloor))
}

func paramsFeature(rc *waf.RequestContext) float64 {
	var n int
	for _, vv := range rc.Query {
		n += len(vv)
	}
	return clamp01(float64(n) / paramsPivot)
}

func headersFeature(rc *waf.RequestContext) float64 {
	n := len(rc.Headers)

	if n < sparseHeaders {
		return float64(sparseHeaders-n) / sparseHeaders
	}
	if n > crowdedHeaders {
		return clamp01(float64(n-crowdedHeaders) / (headersCeil - crowdedHeaders))
	}
	return 0
}

// shannonEntropy estimates bits per byte of the string.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	var h float64
	n := float64(len(s))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}

	return h
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
