package flow

// SameMatch is the exact-match table: a hash map from declared label to
// PC. Lookup(x) = some(P) iff x is a declared label with case P.
type SameMatch struct {
	cases map[string]uint32
}

// NewSameMatch builds a SameMatch from the given label->PC case set.
func NewSameMatch(cases map[string]uint32) *SameMatch {
	m := &SameMatch{cases: make(map[string]uint32, len(cases))}
	for k, v := range cases {
		m.cases[k] = v
	}
	return m
}

func (m *SameMatch) Evaluate(subject string) (uint32, bool) {
	pc, ok := m.cases[subject]
	return pc, ok
}
