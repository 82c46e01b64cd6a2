package flow

import (
	"net"
	"strings"
)

func netParseIP(s string) net.IP { return net.ParseIP(s) }

// RunState is the Runner's current execution state.
type RunState int

const (
	StateInactive RunState = iota
	StateRunning
	StateSuspended
	StateFinished
)

// Runner is a per-invocation VM execution context: a register stack,
// program counter, program reference, opaque user data (typically the
// Request), a garbage list of transient strings, and a run state.
type Runner struct {
	program *Program
	rt      *Runtime
	block   *CodeBlock
	pc      int

	regs     []int64
	regTypes []Type
	strs     []string // parallel string storage for TypeString registers

	// UserData is the opaque pointer handed to native calls — typically the
	// *http1.Channel driving this routing decision.
	UserData interface{}

	garbage []string
	state   RunState
	verdict bool

	resumeReg int
}

// NewRunner creates a runner for the named handler in a linked program. It
// returns a *LinkError if the program has not been linked, since running an
// unlinked program would execute unresolved native-call references.
func NewRunner(p *Program, rt *Runtime, handler string, userData interface{}) (*Runner, error) {
	if !p.linked {
		return nil, &LinkError{Handler: handler, Detail: "program not linked"}
	}
	block := p.Handler(handler)
	if block == nil {
		return nil, &LinkError{Handler: handler, Detail: "no such handler"}
	}
	r := &Runner{
		program:  p,
		rt:       rt,
		block:    block,
		regs:     make([]int64, block.NumRegs),
		regTypes: make([]Type, block.NumRegs),
		strs:     make([]string, block.NumRegs),
		UserData: userData,
		state:    StateInactive,
	}
	return r, nil
}

// NewRunnerAt is NewRunner with an explicit starting PC, used by callers
// (and asm tests) that jump straight into a handler's dispatch point rather
// than its textual start, e.g. when a handler body is just a match
// instruction preceded by its case blocks.
func NewRunnerAt(p *Program, rt *Runtime, handler string, userData interface{}, startPC int) (*Runner, error) {
	r, err := NewRunner(p, rt, handler, userData)
	if err != nil {
		return nil, err
	}
	r.pc = startPC
	return r, nil
}

// State returns the Runner's current execution state.
func (r *Runner) State() RunState { return r.state }

// DebugRegInt exposes a register's raw integer value for tests and
// disassembly; not used by the interpreter itself.
func (r *Runner) DebugRegInt(reg uint16) int64 { return r.regs[reg] }

// Release frees every transient string created during execution: strings
// produced at run time live on the runner's garbage list and are freed
// when the runner is destroyed.
func (r *Runner) Release() { r.garbage = nil }

func (r *Runner) setString(reg uint16, s string) {
	r.strs[reg] = s
	r.regTypes[reg] = TypeString
}

func (r *Runner) newTransientString(s string) string {
	r.garbage = append(r.garbage, s)
	return s
}

func (r *Runner) setInt(reg uint16, v int64) { r.regs[reg] = v; r.regTypes[reg] = TypeInt }
func (r *Runner) setBool(reg uint16, v bool) {
	if v {
		r.regs[reg] = 1
	} else {
		r.regs[reg] = 0
	}
	r.regTypes[reg] = TypeBool
}
func (r *Runner) getInt(reg uint16) int64     { return r.regs[reg] }
func (r *Runner) getBool(reg uint16) bool     { return r.regs[reg] != 0 }
func (r *Runner) getString(reg uint16) string { return r.strs[reg] }

// Run executes from the current PC until the handler exits (Opcode Exit),
// it suspends on a native call, or a runtime fault occurs. It is the single
// entry point for both the initial invocation and every Resume.
func (r *Runner) Run() (verdict bool, state RunState, err error) {
	r.state = StateRunning
	code := r.block.Code
	for r.pc < len(code) {
		in := code[r.pc]
		switch in.Op() {
		case OpNop:
			r.pc++

		case OpLoadConstInt:
			r.setInt(in.A(), r.program.Pool.Ints[in.B()])
			r.pc++
		case OpLoadConstString:
			r.setString(in.A(), r.program.Pool.Strings[in.B()])
			r.pc++
		case OpLoadConstIP:
			r.setString(in.A(), r.program.Pool.IPs[in.B()].String())
			r.regTypes[in.A()] = TypeIP
			r.pc++
		case OpLoadConstCIDR:
			r.regs[in.A()] = int64(in.B())
			r.regTypes[in.A()] = TypeCIDR
			r.pc++
		case OpLoadRegex:
			r.regs[in.A()] = int64(in.B())
			r.regTypes[in.A()] = TypeRegex
			r.pc++
		case OpLoadHandlerRef:
			r.regs[in.A()] = int64(in.B())
			r.regTypes[in.A()] = TypeHandlerRef
			r.pc++
		case OpMove:
			r.regs[in.A()] = r.regs[in.B()]
			r.strs[in.A()] = r.strs[in.B()]
			r.regTypes[in.A()] = r.regTypes[in.B()]
			r.pc++

		case OpAdd:
			r.setInt(in.A(), r.getInt(in.B())+r.getInt(in.C()))
			r.pc++
		case OpSub:
			r.setInt(in.A(), r.getInt(in.B())-r.getInt(in.C()))
			r.pc++
		case OpMul:
			r.setInt(in.A(), r.getInt(in.B())*r.getInt(in.C()))
			r.pc++
		case OpDiv:
			r.setInt(in.A(), r.getInt(in.B())/r.getInt(in.C()))
			r.pc++
		case OpMod:
			r.setInt(in.A(), r.getInt(in.B())%r.getInt(in.C()))
			r.pc++
		case OpNeg:
			r.setInt(in.A(), -r.getInt(in.B()))
			r.pc++
		case OpAnd:
			r.setInt(in.A(), r.getInt(in.B())&r.getInt(in.C()))
			r.pc++
		case OpOr:
			r.setInt(in.A(), r.getInt(in.B())|r.getInt(in.C()))
			r.pc++
		case OpXor:
			r.setInt(in.A(), r.getInt(in.B())^r.getInt(in.C()))
			r.pc++
		case OpNot:
			r.setBool(in.A(), !r.getBool(in.B()))
			r.pc++
		case OpShl:
			r.setInt(in.A(), r.getInt(in.B())<<uint(r.getInt(in.C())))
			r.pc++
		case OpShr:
			r.setInt(in.A(), r.getInt(in.B())>>uint(r.getInt(in.C())))
			r.pc++

		case OpEqInt:
			r.setBool(in.A(), r.getInt(in.B()) == r.getInt(in.C()))
			r.pc++
		case OpNeInt:
			r.setBool(in.A(), r.getInt(in.B()) != r.getInt(in.C()))
			r.pc++
		case OpLtInt:
			r.setBool(in.A(), r.getInt(in.B()) < r.getInt(in.C()))
			r.pc++
		case OpLeInt:
			r.setBool(in.A(), r.getInt(in.B()) <= r.getInt(in.C()))
			r.pc++
		case OpGtInt:
			r.setBool(in.A(), r.getInt(in.B()) > r.getInt(in.C()))
			r.pc++
		case OpGeInt:
			r.setBool(in.A(), r.getInt(in.B()) >= r.getInt(in.C()))
			r.pc++
		case OpEqString:
			r.setBool(in.A(), r.getString(in.B()) == r.getString(in.C()))
			r.pc++
		case OpNeString:
			r.setBool(in.A(), r.getString(in.B()) != r.getString(in.C()))
			r.pc++
		case OpLtString:
			r.setBool(in.A(), r.getString(in.B()) < r.getString(in.C()))
			r.pc++
		case OpGtString:
			r.setBool(in.A(), r.getString(in.B()) > r.getString(in.C()))
			r.pc++
		case OpContains:
			r.setBool(in.A(), strings.Contains(r.getString(in.B()), r.getString(in.C())))
			r.pc++
		case OpPrefixMatch:
			r.setBool(in.A(), strings.HasPrefix(r.getString(in.B()), r.getString(in.C())))
			r.pc++
		case OpSuffixMatch:
			r.setBool(in.A(), strings.HasSuffix(r.getString(in.B()), r.getString(in.C())))
			r.pc++
		case OpRegexMatch:
			re := r.program.Pool.Regexes[r.regs[in.B()]]
			r.setBool(in.A(), re.MatchString(r.getString(in.C())))
			r.pc++

		case OpIPEqual:
			r.setBool(in.A(), r.getString(in.B()) == r.getString(in.C()))
			r.pc++
		case OpIPInCIDR:
			ip := netParseIP(r.getString(in.B()))
			cidr := r.program.Pool.CIDRs[r.regs[in.C()]]
			r.setBool(in.A(), ip != nil && cidr.Contains(ip))
			r.pc++
		case OpCIDREqual:
			lhs := r.program.Pool.CIDRs[r.regs[in.B()]]
			rhs := r.program.Pool.CIDRs[r.regs[in.C()]]
			r.setBool(in.A(), lhs.String() == rhs.String())
			r.pc++

		case OpJump:
			r.pc = int(in.A())
		case OpJumpIfTrue:
			if r.getBool(in.A()) {
				r.pc = int(in.B())
			} else {
				r.pc++
			}
		case OpJumpIfFalse:
			if !r.getBool(in.A()) {
				r.pc = int(in.B())
			} else {
				r.pc++
			}
		case OpExit:
			r.verdict = r.getBool(in.A())
			r.state = StateFinished
			return r.verdict, r.state, nil

		case OpNativeCall:
			verdict, st, err := r.execNativeCall(in)
			if st == StateSuspended || err != nil {
				return verdict, st, err
			}
		case OpNativeHandlerCall:
			verdict, st, err := r.execNativeHandlerCall(in)
			if st == StateSuspended || err != nil {
				return verdict, st, err
			}

		case OpMatchSame, OpMatchHead, OpMatchTail, OpMatchRegex:
			r.execMatch(in)

		default:
			r.pc++
		}
	}
	r.state = StateFinished
	return r.verdict, r.state, nil
}

func (r *Runner) execMatch(in Instr) {
	m := r.program.Pool.MatchTables[in.B()]
	subject := r.getString(in.A())
	if pc, ok := m.Evaluate(subject); ok {
		r.pc = int(pc)
		return
	}
	r.pc = int(in.C())
}

// nativeArgs gathers the call's argument Values from the contiguous
// register window starting at first (the result register A plus one), argc
// deep, packed by the builder.
func (r *Runner) nativeArgs(first uint16, argc int) []Value {
	args := make([]Value, argc)
	for i := 0; i < argc; i++ {
		reg := first + uint16(i)
		args[i] = Value{Type: r.regTypes[reg], I: r.regs[reg], S: r.strs[reg]}
	}
	return args
}

func (r *Runner) execNativeCall(in Instr) (bool, RunState, error) {
	name := r.program.Pool.Strings[in.B()]
	f, ok := r.rt.funcs[name]
	if !ok {
		return false, StateFinished, &LinkError{Detail: "call to unregistered function " + name}
	}
	argc := len(f.Args)
	args := r.nativeArgs(in.A()+1, argc)
	resultReg := in.A()
	resume := func(v Value) {
		r.storeResult(resultReg, v)
		r.pc++
		r.state = StateRunning
	}
	result, suspend := f.Call(r, args, resume)
	if suspend {
		r.state = StateSuspended
		return false, StateSuspended, nil
	}
	r.storeResult(resultReg, result)
	r.pc++
	return false, StateRunning, nil
}

func (r *Runner) storeResult(reg uint16, v Value) {
	r.regTypes[reg] = v.Type
	r.regs[reg] = v.I
	if v.Type == TypeString {
		r.strs[reg] = r.newTransientString(v.S)
	}
}

func (r *Runner) execNativeHandlerCall(in Instr) (bool, RunState, error) {
	name := r.program.Pool.Strings[in.B()]
	h, ok := r.rt.handlers[name]
	if !ok {
		return false, StateFinished, &LinkError{Detail: "call to unregistered handler " + name}
	}
	argc := len(h.Args)
	args := r.nativeArgs(in.A()+1, argc)
	resultReg := in.A()
	resume := func(handled bool) {
		r.setBool(resultReg, handled)
		r.pc++
		r.state = StateRunning
	}
	handled, suspend := h.Call(r, args, resume)
	if suspend {
		r.state = StateSuspended
		return false, StateSuspended, nil
	}
	r.setBool(resultReg, handled)
	r.pc++
	return false, StateRunning, nil
}
