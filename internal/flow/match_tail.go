package flow

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

// TailMatch is the suffix trie: character-indexed from the end,
// longest-suffix-wins. Implemented as a HeadMatch over reversed keys.
type TailMatch struct {
	tree *iradix.Tree
}

// NewTailMatch builds a TailMatch from label->PC cases, reversing each
// label before insertion.
func NewTailMatch(cases map[string]uint32) *TailMatch {
	tree := iradix.New()
	for label, pc := range cases {
		tree, _, _ = tree.Insert(reverseBytes([]byte(label)), pc)
	}
	return &TailMatch{tree: tree}
}

func (m *TailMatch) Evaluate(subject string) (uint32, bool) {
	_, v, ok := m.tree.Root().LongestPrefix(reverseBytes([]byte(subject)))
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
