package geo

import (
	"warden/ipaddresses"
)

// ipTrie is a binary trie over IPv4 address bits, answering membership for a
// set of addresses and CIDR blocks. Built once and read-only afterwards.
type ipTrie struct {
	root *trieNode
}

type trieNode struct {
	terminal bool
	children [2]*trieNode
}

// newIPTrie builds a trie from plain addresses and CIDR notation. Invalid
// entries are reported, not silently skipped.
func newIPTrie(entries []string) (t *ipTrie, err error) {
	t = &ipTrie{root: &trieNode{}}

	for _, e := range entries {
		ip, bits, perr := ipaddresses.ParsePrefix(e)
		if perr != nil {
			err = perr
			return
		}

		t.insert(ip, bits)
	}

	return
}

func (t *ipTrie) insert(ip uint32, bits int) {
	node := t.root
	for depth := 0; depth < bits; depth++ {
		if node.terminal {
			// A broader block already covers this prefix.
			return
		}

		bit := ip >> uint(31-depth) & 1
		if node.children[bit] == nil {
			node.children[bit] = &trieNode{}
		}
		node = node.children[bit]
	}

	node.terminal = true
}

// Match reports whether the address is covered by any entry. An unparseable
// address is never a member.
func (t *ipTrie) Match(addr string) bool {
	ip, err := ipaddresses.ParseIPv4(addr)
	if err != nil {
		return false
	}

	node := t.root
	for depth := 0; depth < 32; depth++ {
		if node.terminal {
			return true
		}

		node = node.children[ip>>uint(31-depth)&1]
		if node == nil {
			return false
		}
	}

	return node.terminal
}
