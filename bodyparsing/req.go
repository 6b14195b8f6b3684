// Package bodyparsing captures a bounded prefix of the request body for
// pattern scanning, so a pathological request cannot stall the pipeline.
package bodyparsing

import (
	"io"
	"strings"

	"warden/waf"
)

type bodyCapturer struct {
	maxScanBytes int
}

// NewBodyCapturer creates a waf.BodyCapturer that reads at most maxScanBytes
// bytes of body. Anything beyond that is reported as truncated, not an error.
func NewBodyCapturer(maxScanBytes int) waf.BodyCapturer {
	return &bodyCapturer{maxScanBytes: maxScanBytes}
}

func (c *bodyCapturer) Capture(r io.Reader) (body string, truncated bool, err error) {
	if r == nil || c.maxScanBytes <= 0 {
		return
	}

	var b strings.Builder

	// Read one byte past the cap to tell a body that is exactly at the cap
	// apart from one that exceeds it.
	n, err := io.Copy(&b, io.LimitReader(r, int64(c.maxScanBytes)+1))
	if err != nil {
		// Keep what was read; the caller scans the partial body.
		body = b.String()
		return
	}

	body = b.String()
	if n > int64(c.maxScanBytes) {
		body = body[:c.maxScanBytes]
		truncated = true
	}

	return
}
