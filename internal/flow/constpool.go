package flow

import (
	"net"
	"regexp"
)

// ConstPool is the Flow program's interned constant tables. Every table
// entry is addressable by a 16-bit index; an instruction that encodes an
// operand as "constant" looks it up through the matching table here.
// Entries are immutable once the program is built (asm.Builder never
// mutates a pool slot after Link).
type ConstPool struct {
	Ints    []int64
	Strings []string
	IPs     []net.IP
	CIDRs   []CIDR
	Regexes []*regexp.Regexp

	// Handlers holds one CodeBlock per compiled handler entry point,
	// addressed by a 16-bit index like the other tables. OpNativeHandlerCall
	// does not use it: it resolves its target by name through Strings.
	Handlers []*CodeBlock

	// MatchTables holds one compiled Match implementation per match-table
	// definition; referenced by the match family of opcodes.
	MatchTables []Match
}

// AddInt interns v, returning its pool index. Exported for internal/flow/asm.
func (p *ConstPool) AddInt(v int64) uint16 {
	p.Ints = append(p.Ints, v)
	return uint16(len(p.Ints) - 1)
}

// AddString interns v, returning its pool index.
func (p *ConstPool) AddString(v string) uint16 {
	p.Strings = append(p.Strings, v)
	return uint16(len(p.Strings) - 1)
}

// AddIP interns v, returning its pool index.
func (p *ConstPool) AddIP(v net.IP) uint16 {
	p.IPs = append(p.IPs, v)
	return uint16(len(p.IPs) - 1)
}

// AddCIDR interns v, returning its pool index.
func (p *ConstPool) AddCIDR(v CIDR) uint16 {
	p.CIDRs = append(p.CIDRs, v)
	return uint16(len(p.CIDRs) - 1)
}

// AddRegex interns v, returning its pool index.
func (p *ConstPool) AddRegex(v *regexp.Regexp) uint16 {
	p.Regexes = append(p.Regexes, v)
	return uint16(len(p.Regexes) - 1)
}

// AddMatchTable interns m, returning its pool index.
func (p *ConstPool) AddMatchTable(m Match) uint16 {
	p.MatchTables = append(p.MatchTables, m)
	return uint16(len(p.MatchTables) - 1)
}
