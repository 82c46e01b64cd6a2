// Package asm supplies the Flow program builder. It deliberately leaves
// the concrete configuration-language syntax unspecified, mandating only
// the compiled program representation. Builder constructs that compiled
// representation — bytecode, constant pool, and match tables — directly,
// without a textual front-end.
package asm

import (
 "net"
 "regexp"

 "github.com/christianparpart/x0-sub009/internal/flow"
)

// Builder accumulates one *flow.Program across one or more handlers.
type Builder struct {
 program *flow.Program
 sites map[string][]flow.CallSite
 cur *handlerBuilder
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{program: flow.NewProgram(), sites: make(map[string][]flow.CallSite)}
}

// Handler starts (or resumes) building the named entry point and returns a
// handlerBuilder scoped to it.
func (b *Builder) Handler(name string) *handlerBuilder {
 block := b.program.Handler(name)
 if block == nil {
 block = &flow.CodeBlock{Name: name}
 b.program.Handlers[name] = block
 }
 b.cur = &handlerBuilder{b: b, name: name, block: block}
 return b.cur
}

// Program returns the program built so far. Callers must still pass it and
// CallSites to flow.Link before constructing a Runner.
func (b *Builder) Program() *flow.Program { return b.program }

// CallSites returns the per-handler native-call argument-type records Link
// needs to verify signatures.
func (b *Builder) CallSites() map[string][]flow.CallSite { return b.sites }

func (b *Builder) internInt(v int64) uint16 { return b.program.Pool.AddInt(v) }
func (b *Builder) internString(v string) uint16 { return b.program.Pool.AddString(v) }
func (b *Builder) internIP(v net.IP) uint16 { return b.program.Pool.AddIP(v) }
func (b *Builder) internCIDR(v flow.CIDR) uint16 { return b.program.Pool.AddCIDR(v) }
func (b *Builder) internRegex(v *regexp.Regexp) uint16 { return b.program.Pool.AddRegex(v) }
func (b *Builder) internMatchTable(m flow.Match) uint16 { return b.program.Pool.AddMatchTable(m) }

// handlerBuilder emits instructions into one handler's CodeBlock via the
// Program.Handler(name).Emit(...) shape.
type handlerBuilder struct {
 b *Builder
 name string
 block *flow.CodeBlock
}

// Emit appends one instruction and returns its PC, so callers can patch
// forward branches by capturing the PC and calling Patch later.
func (h *handlerBuilder) Emit(op flow.Opcode, a, b, c uint16) int {
 h.block.Code = append(h.block.Code, flow.Pack(op, a, b, c))
 return len(h.block.Code) - 1
}

// PC returns the next instruction's position, for forward-branch planning.
func (h *handlerBuilder) PC() int { return len(h.block.Code) }

// Patch rewrites operand C (conventionally the branch target) of the
// instruction at pc.
func (h *handlerBuilder) Patch(pc int, target uint16) {
 in := h.block.Code[pc]
 h.block.Code[pc] = flow.Pack(in.Op(), in.A(), in.B(), target)
}

// PatchB rewrites operand B of the instruction at pc (used for
// OpJumpIfTrue/False, whose branch target is packed into B).
func (h *handlerBuilder) PatchB(pc int, target uint16) {
 in := h.block.Code[pc]
 h.block.Code[pc] = flow.Pack(in.Op(), in.A(), target, in.C())
}

// ConstInt interns v and returns its pool index.
func (h *handlerBuilder) ConstInt(v int64) uint16 { return h.b.internInt(v) }

// ConstString interns v and returns its pool index.
func (h *handlerBuilder) ConstString(v string) uint16 { return h.b.internString(v) }

// ConstIP interns v and returns its pool index.
func (h *handlerBuilder) ConstIP(v net.IP) uint16 { return h.b.internIP(v) }

// ConstCIDR interns v and returns its pool index.
func (h *handlerBuilder) ConstCIDR(v flow.CIDR) uint16 { return h.b.internCIDR(v) }

// ConstRegex compiles and interns pattern, returning its pool index. Regex
// compile failure is surfaced immediately since there is no deferred
// compilation step.
func (h *handlerBuilder) ConstRegex(pattern string) (uint16, error) {
 re, err := regexp.Compile(pattern)
 if err != nil {
 return 0, err
 }
 return h.b.internRegex(re), nil
}

// MatchTable interns a built flow.Match implementation (constructed via
// flow.NewSameMatch/NewHeadMatch/NewTailMatch/NewRegExMatch) and returns its
// pool index.
func (h *handlerBuilder) MatchTable(m flow.Match) uint16 { return h.b.internMatchTable(m) }

// NativeCall emits OpNativeCall with operand C set to the argument count and
// records the call site's declared argument types for Link to verify
// against the Runtime signature. The arguments are read from the contiguous
// registers starting at resultReg+1; first is not used.
func (h *handlerBuilder) NativeCall(resultReg uint16, name string, first uint16, argTypes []flow.Type) {
 nameIdx := h.b.internString(name)
 h.Emit(flow.OpNativeCall, resultReg, nameIdx, uint16(len(argTypes)))
 h.b.sites[h.name] = append(h.b.sites[h.name], flow.CallSite{
 PC: len(h.block.Code) - 1, IsHandler: false, Name: name, ArgTypes: argTypes,
 })
 _ = first // argument registers are the contiguous window starting at resultReg+1 by convention
}

// NativeHandlerCall emits OpNativeHandlerCall with the same argument-window
// convention as NativeCall.
func (h *handlerBuilder) NativeHandlerCall(resultReg uint16, name string, first uint16, argTypes []flow.Type) {
 nameIdx := h.b.internString(name)
 h.Emit(flow.OpNativeHandlerCall, resultReg, nameIdx, uint16(len(argTypes)))
 h.b.sites[h.name] = append(h.b.sites[h.name], flow.CallSite{
 PC: len(h.block.Code) - 1, IsHandler: true, Name: name, ArgTypes: argTypes,
 })
 _ = first
}
