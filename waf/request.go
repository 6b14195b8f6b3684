package waf

import (
	"io"
	"net/url"
	"strings"
	"time"
)

// HeaderPair represents a header line in an HTTP request.
type HeaderPair interface {
	Key() string
	Value() string
}

// HTTPRequest represents an inbound HTTP request to be evaluated.
type HTTPRequest interface {
	Method() string
	URI() string
	RemoteAddr() string
	Headers() []HeaderPair
	BodyReader() io.Reader
}

// RequestContext is the normalized view of one request that the evaluation
// pipeline works on. It is built once per request, owned by the evaluation,
// and never mutated after construction.
type RequestContext struct {
	IPAddress string
	Method    string
	Path      string
	RawQuery  string

	// Headers maps lower-cased header keys to their values.
	Headers map[string][]string

	// Query maps decoded query parameter names to their values.
	Query url.Values

	// Cookies maps cookie names to values parsed from the Cookie header.
	Cookies map[string]string

	// Body holds at most the configured number of request body bytes.
	Body          string
	BodyTruncated bool

	Timestamp time.Time
}

// NewRequestContext normalizes an inbound request. Malformed parts (bad URI
// escaping, garbled cookies) degrade to empty values rather than errors, so a
// pathological request can never crash the pipeline.
func NewRequestContext(req HTTPRequest, body string, bodyTruncated bool, now time.Time) *RequestContext {
	rc := &RequestContext{
		IPAddress:     req.RemoteAddr(),
		Method:        req.Method(),
		Headers:       make(map[string][]string),
		Cookies:       make(map[string]string),
		Query:         url.Values{},
		Body:          body,
		BodyTruncated: bodyTruncated,
		Timestamp:     now,
	}

	uri := req.URI()
	if u, err := url.ParseRequestURI(uri); err == nil {
		rc.Path = u.Path
		rc.RawQuery = u.RawQuery
		if q, err := url.ParseQuery(u.RawQuery); err == nil {
			rc.Query = q
		}
	} else {
		// Keep the raw URI as the path so rules still see it.
		rc.Path = uri
	}

	for _, h := range req.Headers() {
		k := strings.ToLower(h.Key())
		rc.Headers[k] = append(rc.Headers[k], h.Value())
	}

	for _, line := range rc.Headers["cookie"] {
		parseCookieLine(line, rc.Cookies)
	}

	return rc
}

// URI reconstructs the request target for logging.
func (rc *RequestContext) URI() string {
	if rc.RawQuery == "" {
		return rc.Path
	}
	return rc.Path + "?" + rc.RawQuery
}

// HeaderValues returns all values of the given header, case-insensitively.
func (rc *RequestContext) HeaderValues(key string) []string {
	return rc.Headers[strings.ToLower(key)]
}

func parseCookieLine(line string, out map[string]string) {
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		eq := strings.IndexByte(part, '=')
		if eq <= 0 {
			continue
		}

		out[part[:eq]] = part[eq+1:]
	}
}
