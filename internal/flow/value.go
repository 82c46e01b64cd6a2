// Package flow implements the embedded rule-evaluation engine: a
// stack-less, register-based bytecode VM whose compiled programs drive
// request routing.
package flow

import (
	"net"
)

// Type tags a Value's dynamic kind. Registers are uniform 64-bit words;
// Type lives alongside each register in the Runner's type-shadow array so
// opcodes can validate operands cheaply without boxing.
type Type uint8

const (
	TypeVoid Type = iota
	TypeInt
	TypeBool
	TypeString
	TypeIP
	TypeCIDR
	TypeRegex
	TypeHandlerRef
	TypeIntArray
	TypeStringArray
	TypeIPArray
	TypeCIDRArray
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeIP:
		return "ip"
	case TypeCIDR:
		return "cidr"
	case TypeRegex:
		return "regex"
	case TypeHandlerRef:
		return "handler"
	case TypeIntArray:
		return "int[]"
	case TypeStringArray:
		return "string[]"
	case TypeIPArray:
		return "ip[]"
	case TypeCIDRArray:
		return "cidr[]"
	default:
		return "unknown"
	}
}

// CIDR is the constant-pool representation of an IP network.
type CIDR struct {
	net.IPNet
}

// Contains reports whether ip falls within c.
func (c CIDR) Contains(ip net.IP) bool { return c.IPNet.Contains(ip) }
