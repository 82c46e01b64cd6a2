package flow

// Program is the Flow VM's compiled input: a constant pool plus a set of
// named handler entry points.
type Program struct {
	Pool     ConstPool
	Handlers map[string]*CodeBlock
	linked   bool
}

// NewProgram returns an empty, unlinked program. internal/flow/asm.Builder
// populates it.
func NewProgram() *Program {
	return &Program{Handlers: make(map[string]*CodeBlock)}
}

// Handler looks up a named entry point. Returns nil if absent.
func (p *Program) Handler(name string) *CodeBlock { return p.Handlers[name] }
