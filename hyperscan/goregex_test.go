package hyperscan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/rules"
)

func TestGoRegexEngineScan(t *testing.T) {
	f := NewGoRegexEngineFactory()
	e, err := f.NewMultiRegexEngine([]rules.MultiRegexEnginePattern{
		{ID: 1, Expr: "ab+c"},
		{ID: 2, Expr: "union\\s+select"},
		{ID: 3, Expr: "xyz"},
	})
	assert.Nil(t, err)
	defer e.Close()

	matches, err := e.Scan([]byte("1 UNION SELECT password FROM abbbc"))
	assert.Nil(t, err)

	ids := map[int]bool{}
	for _, m := range matches {
		ids[m.ID] = true
	}

	assert.True(t, ids[1])
	assert.True(t, ids[2])
	assert.False(t, ids[3])
}

func TestGoRegexEngineCaseInsensitive(t *testing.T) {
	f := NewGoRegexEngineFactory()
	e, err := f.NewMultiRegexEngine([]rules.MultiRegexEnginePattern{{ID: 7, Expr: "<script"}})
	assert.Nil(t, err)
	defer e.Close()

	matches, err := e.Scan([]byte("<SCRIPT>alert(1)</SCRIPT>"))
	assert.Nil(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, 7, matches[0].ID)
}

func TestGoRegexEngineRejectsBadPattern(t *testing.T) {
	f := NewGoRegexEngineFactory()
	_, err := f.NewMultiRegexEngine([]rules.MultiRegexEnginePattern{{ID: 1, Expr: "a(b"}})
	assert.NotNil(t, err)
}

func TestCompileRegexFacadeHexEscaped(t *testing.T) {
	g, err := compileRegexFacade(`\xA0\xA1`)
	assert.Nil(t, err)
	assert.NotNil(t, g.goregexpBin)
	assert.True(t, g.Match([]byte{0xA0, 0xA1}))
	assert.False(t, g.Match([]byte("plain text")))
}

func TestCompileRegexFacadePlain(t *testing.T) {
	g, err := compileRegexFacade("abc+")
	assert.Nil(t, err)
	assert.NotNil(t, g.goregexp)
	assert.True(t, g.Match([]byte("zabccc")))
}

func TestContainsHexEscapedBytes(t *testing.T) {
	assert.True(t, containsHexEscapedBytes(`\x00abc`))
	assert.True(t, containsHexEscapedBytes(`a\\\x41`))
	assert.False(t, containsHexEscapedBytes(`abc`))
	assert.False(t, containsHexEscapedBytes(`a\\x41`))
}
