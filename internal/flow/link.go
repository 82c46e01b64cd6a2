package flow

// CallSite records one native-call/native-handler-call instruction's
// declared argument types, captured by asm.Builder at emit time so Link can
// verify it against the Runtime's registered signature without needing
// full bytecode type inference.
type CallSite struct {
	PC       int
	IsHandler bool
	Name     string
	ArgTypes []Type
}

// Link resolves every program handler's native-call references against rt,
// validates declared argument types match each registered signature, and
// rejects the program with a *LinkError on any mismatch.
//
// A program that fails to link is never executed; Program.linked gates
// NewRunner.
func Link(p *Program, rt *Runtime, sites map[string][]CallSite) error {
	for name, block := range p.Handlers {
		want := computeStackSize(block.Code)
		if want > block.NumRegs {
			block.NumRegs = want
		}
		for _, cs := range sites[name] {
			if cs.IsHandler {
				h, ok := rt.handlers[cs.Name]
				if !ok {
					return &LinkError{Handler: name, Detail: "unknown native handler " + cs.Name}
				}
				if err := checkArgTypes(cs.Name, h.Args, cs.ArgTypes); err != nil {
					return &LinkError{Handler: name, Detail: err.Error()}
				}
				continue
			}
			f, ok := rt.funcs[cs.Name]
			if !ok {
				return &LinkError{Handler: name, Detail: "unknown native function " + cs.Name}
			}
			if err := checkArgTypes(cs.Name, f.Args, cs.ArgTypes); err != nil {
				return &LinkError{Handler: name, Detail: err.Error()}
			}
		}
	}
	p.linked = true
	return nil
}

func checkArgTypes(name string, declared, actual []Type) error {
	if len(declared) != len(actual) {
		return &typeMismatch{name: name, reason: "argument count mismatch"}
	}
	for i := range declared {
		if declared[i] != actual[i] {
			return &typeMismatch{name: name, reason: "argument " + string(rune('0'+i)) + " type mismatch"}
		}
	}
	return nil
}

type typeMismatch struct {
	name   string
	reason string
}

func (e *typeMismatch) Error() string { return e.name + ": " + e.reason }
