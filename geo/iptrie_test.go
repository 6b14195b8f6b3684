package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPTrieEmpty(t *testing.T) {
	trie, err := newIPTrie(nil)
	assert.Nil(t, err)
	assert.False(t, trie.Match("1.2.3.4"))
}

func TestIPTrieSingleAddress(t *testing.T) {
	trie, err := newIPTrie([]string{"4.3.2.1"})
	assert.Nil(t, err)
	assert.True(t, trie.Match("4.3.2.1"))
	assert.False(t, trie.Match("4.3.2.2"))
}

func TestIPTrieCIDR(t *testing.T) {
	trie, err := newIPTrie([]string{"127.0.0.0/8", "10.1.0.0/16"})
	assert.Nil(t, err)

	assert.True(t, trie.Match("127.12.7.0"))
	assert.True(t, trie.Match("127.255.255.255"))
	assert.False(t, trie.Match("128.0.0.1"))
	assert.True(t, trie.Match("10.1.200.3"))
	assert.False(t, trie.Match("10.2.0.1"))
}

func TestIPTrieBoundaryAddresses(t *testing.T) {
	trie, err := newIPTrie([]string{"0.0.0.0", "255.255.255.255"})
	assert.Nil(t, err)
	assert.True(t, trie.Match("0.0.0.0"))
	assert.True(t, trie.Match("255.255.255.255"))
	assert.False(t, trie.Match("1.1.1.1"))
}

func TestIPTrieNestedPrefixes(t *testing.T) {
	trie, err := newIPTrie([]string{"10.0.0.0/8", "10.1.2.3"})
	assert.Nil(t, err)
	assert.True(t, trie.Match("10.1.2.3"))
	assert.True(t, trie.Match("10.200.0.1"))
}

func TestIPTrieInvalidEntry(t *testing.T) {
	_, err := newIPTrie([]string{"300.1.2.3"})
	assert.NotNil(t, err)

	_, err = newIPTrie([]string{"10.0.0.0/40"})
	assert.NotNil(t, err)
}

func TestIPTrieUnparseableLookup(t *testing.T) {
	trie, err := newIPTrie([]string{"10.0.0.0/8"})
	assert.Nil(t, err)
	assert.False(t, trie.Match("garbage"))
}
