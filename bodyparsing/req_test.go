package bodyparsing

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureWithinLimit(t *testing.T) {
	c := NewBodyCapturer(16)

	body, truncated, err := c.Capture(strings.NewReader("hello"))

	assert.Nil(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "hello", body)
}

func TestCaptureExactlyAtLimit(t *testing.T) {
	c := NewBodyCapturer(5)

	body, truncated, err := c.Capture(strings.NewReader("hello"))

	assert.Nil(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "hello", body)
}

func TestCaptureTruncatesOverLimit(t *testing.T) {
	c := NewBodyCapturer(4)

	body, truncated, err := c.Capture(strings.NewReader("hello world"))

	assert.Nil(t, err)
	assert.True(t, truncated)
	assert.Equal(t, "hell", body)
}

func TestCaptureNilReader(t *testing.T) {
	c := NewBodyCapturer(4)

	body, truncated, err := c.Capture(nil)

	assert.Nil(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "", body)
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestCaptureKeepsPartialBodyOnReadError(t *testing.T) {
	c := NewBodyCapturer(1024)

	body, truncated, err := c.Capture(&failingReader{data: "partial"})

	assert.NotNil(t, err)
	assert.False(t, truncated)
	assert.Equal(t, "partial", body)
}

var _ io.Reader = &failingReader{}
