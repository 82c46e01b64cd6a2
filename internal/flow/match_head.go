package flow

import (
	iradix "github.com/hashicorp/go-immutable-radix"
)

// HeadMatch is the prefix trie: character-indexed forward,
// longest-prefix-wins. Backed by github.com/hashicorp/go-immutable-radix,
// whose LongestPrefix walk gives nearest-ancestor-with-a-stored-value
// semantics.
type HeadMatch struct {
	tree *iradix.Tree
}

// NewHeadMatch builds a HeadMatch from label->PC cases. Labels are the
// prefixes to match against (e.g. "/api/").
func NewHeadMatch(cases map[string]uint32) *HeadMatch {
	tree := iradix.New()
	for label, pc := range cases {
		tree, _, _ = tree.Insert([]byte(label), pc)
	}
	return &HeadMatch{tree: tree}
}

func (m *HeadMatch) Evaluate(subject string) (uint32, bool) {
	_, v, ok := m.tree.Root().LongestPrefix([]byte(subject))
	if !ok {
		return 0, false
	}
	return v.(uint32), true
}
