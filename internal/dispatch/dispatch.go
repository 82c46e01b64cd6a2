// Package dispatch wires the Flow VM (internal/flow) into request routing:
// it exposes request introspection as Flow native functions and lets a
// compiled program hand the channel off to a named backend Handler via a
// native handler call that returns the routing verdict as a boolean.
package dispatch

import (
	"github.com/christianparpart/x0-sub009/internal/flow"
	"github.com/christianparpart/x0-sub009/internal/http1"
)

// requestAccessor is satisfied by both internal/http1.Channel and
// internal/fastcgi.Channel, letting the request-introspection native
// functions below stay protocol-agnostic even though the backend-dispatch
// native handler registered via RegisterBackend is http1.Handler-shaped
// and only serves a *http1.Channel (for any other UserData it reports
// "not handled" without calling the backend).
type requestAccessor interface {
	Request() *http1.Request
}

// Register adds the read-only request accessors every Flow program linked
// through this package can call, regardless of wire protocol. Call it once
// per Runtime before linking any program against rt.
func Register(rt *flow.Runtime) {
	registerRequestFuncs(rt)
}

// registerRequestFuncs adds req.path/req.method/req.host/req.query/
// req.header, each reading from the Runner's UserData (the Channel driving
// this routing decision).
func registerRequestFuncs(rt *flow.Runtime) {
	rt.RegisterFunc(&flow.NativeFunc{
		Name: "req.path",
		Ret:  flow.TypeString,
		Call: func(r *flow.Runner, args []flow.Value, resume func(flow.Value)) (flow.Value, bool) {
			ra := r.UserData.(requestAccessor)
			return flow.Value{Type: flow.TypeString, S: ra.Request().Path}, false
		},
	})
	rt.RegisterFunc(&flow.NativeFunc{
		Name: "req.method",
		Ret:  flow.TypeString,
		Call: func(r *flow.Runner, args []flow.Value, resume func(flow.Value)) (flow.Value, bool) {
			ra := r.UserData.(requestAccessor)
			return flow.Value{Type: flow.TypeString, S: ra.Request().RawMethod}, false
		},
	})
	rt.RegisterFunc(&flow.NativeFunc{
		Name: "req.host",
		Ret:  flow.TypeString,
		Call: func(r *flow.Runner, args []flow.Value, resume func(flow.Value)) (flow.Value, bool) {
			ra := r.UserData.(requestAccessor)
			return flow.Value{Type: flow.TypeString, S: ra.Request().Host}, false
		},
	})
	rt.RegisterFunc(&flow.NativeFunc{
		Name: "req.query",
		Ret:  flow.TypeString,
		Call: func(r *flow.Runner, args []flow.Value, resume func(flow.Value)) (flow.Value, bool) {
			ra := r.UserData.(requestAccessor)
			return flow.Value{Type: flow.TypeString, S: ra.Request().Query}, false
		},
	})
	rt.RegisterFunc(&flow.NativeFunc{
		Name: "req.header",
		Args: []flow.Type{flow.TypeString},
		Ret:  flow.TypeString,
		Call: func(r *flow.Runner, args []flow.Value, resume func(flow.Value)) (flow.Value, bool) {
			ra := r.UserData.(requestAccessor)
			return flow.Value{Type: flow.TypeString, S: ra.Request().Headers.Get(args[0].S)}, false
		},
	})
}

// RegisterBackend binds name to backend as a Flow native handler, so a
// compiled program's NativeHandlerCall(reg, name, ...) hands the in-flight
// request off to backend and yields the boolean "handled" verdict the
// interpreter's exit opcode ultimately reports. Runner.UserData must be the
// *http1.Channel driving the routing decision (set by the caller
// constructing the Runner, e.g. cmd/flowserved's flowHandler).
func RegisterBackend(rt *flow.Runtime, name string, backend http1.Handler) {
	rt.RegisterHandler(&flow.NativeHandler{
		Name: name,
		Call: func(r *flow.Runner, args []flow.Value, resume func(bool)) (bool, bool) {
			ch, ok := r.UserData.(*http1.Channel)
			if !ok {
				return false, false
			}
			backend.ServeHTTP(ch)
			return true, false
		},
	})
}
