package flow

import "regexp"

// RegExMatch is the ordered (regex, PC) list: first match wins,
// tie-breaking by source order.
type RegExMatch struct {
	patterns []*regexp.Regexp
	targets  []uint32
}

// RegExCase is one ordered entry in a RegExMatch table.
type RegExCase struct {
	Pattern *regexp.Regexp
	PC      uint32
}

// NewRegExMatch builds a RegExMatch preserving the given case order.
func NewRegExMatch(cases []RegExCase) *RegExMatch {
	m := &RegExMatch{}
	for _, c := range cases {
		m.patterns = append(m.patterns, c.Pattern)
		m.targets = append(m.targets, c.PC)
	}
	return m
}

func (m *RegExMatch) Evaluate(subject string) (uint32, bool) {
	for i, p := range m.patterns {
		if p.MatchString(subject) {
			return m.targets[i], true
		}
	}
	return 0, false
}
